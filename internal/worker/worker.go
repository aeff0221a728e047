package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/mq"
	"github.com/shaiso/Relay/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 20
	defaultPrefetch     = 1
)

// Runner выполняет workflow.
type Runner interface {
	Execute(ctx context.Context, runID uuid.UUID, req *domain.WorkflowRequest) (*domain.WorkflowResult, error)
}

// RunStore — журнал runs.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	Claim(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
	ListPending(ctx context.Context, limit int) ([]domain.Run, error)
}

// Notifier сообщает о завершённых runs.
type Notifier interface {
	PublishWorkflowFinished(ctx context.Context, run *domain.Run) error
}

// Config — конфигурация Worker.
type Config struct {
	Runner Runner
	Runs   RunStore

	// Notifier — публикация workflow.finished (опционально).
	Notifier Notifier

	// Conn — соединение с RabbitMQ. Без него работает только polling.
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // runs за один poll (default: 20)
	Prefetch     int           // параллельные доставки (default: 1)

	Logger *slog.Logger
}

// Worker выполняет асинхронно поставленные workflow.
//
// Runs приходят из очереди workflows.submitted; polling PENDING runs
// в БД подхватывает то, что было поставлено, пока очередь недоступна.
// Несколько экземпляров безопасно делят одну очередь: run берётся
// в работу только через RunStore.Claim.
type Worker struct {
	runner   Runner
	runs     RunStore
	notifier Notifier
	conn     *mq.Connection

	pollInterval time.Duration
	batchSize    int
	prefetch     int

	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Worker{
		runner:       cfg.Runner,
		runs:         cfg.Runs,
		notifier:     cfg.Notifier,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		prefetch:     prefetch,
		logger:       telemetry.OrDefault(cfg.Logger).With("component", "worker"),
	}
}

// Start запускает consumer (если есть соединение) и polling.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"queue", w.conn != nil,
	)

	if w.conn != nil {
		consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueWorkflowsSubmitted,
			Handler:  w.handleSubmitted,
			Prefetch: w.prefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("workflow consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	return nil
}

// Stop останавливает Worker и ждёт текущие runs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// pollLoop — цикл polling.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем runs, поставленные пока worker был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	runs, err := w.runs.ListPending(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to list pending runs", "error", err)
		}
		return
	}

	if len(runs) == 0 {
		return
	}

	w.logger.Debug("poll found pending runs", "count", len(runs))

	for i := range runs {
		if ctx.Err() != nil {
			return
		}
		err := w.processRun(ctx, runs[i].ID)
		if err != nil && !errors.Is(err, ErrRunNotPending) {
			w.logger.Error("failed to process run from poll", "run_id", runs[i].ID, "error", err)
		}
	}
}
