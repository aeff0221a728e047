package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/telemetry"
)

// DefaultSchedule — расписание обновления по умолчанию.
const DefaultSchedule = "@every 5m"

// Refresher — то, что scheduler обновляет по расписанию.
type Refresher interface {
	Refresh(ctx context.Context) (*registry.Report, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	Refresher Refresher

	// Schedule — cron-выражение или дескриптор (default: @every 5m).
	Schedule string

	Logger *slog.Logger
}

// Scheduler — периодическое обновление реестра.
type Scheduler struct {
	refresher Refresher
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New создаёт Scheduler. Невалидное расписание — ошибка.
func New(cfg Config) (*Scheduler, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	logger := telemetry.OrDefault(cfg.Logger)
	cl := cronLogger{logger: logger}

	return &Scheduler{
		refresher: cfg.Refresher,
		schedule:  schedule,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			// Медленное обновление не накладывается на следующее
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}, nil
}

// Start выполняет первое обновление в фоне и запускает расписание.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.schedule, func() { s.Tick(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("add refresh job: %w", err)
	}

	// Первое обновление сразу, не дожидаясь расписания
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(s.ctx)
	}()

	s.cron.Start()
	s.started = true

	s.logger.Info("registry refresh scheduled", "schedule", s.schedule)
	return nil
}

// Stop останавливает расписание и ждёт текущее обновление.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.started = false

	s.logger.Info("registry refresh stopped")
}

// Tick выполняет одно обновление реестра.
func (s *Scheduler) Tick(ctx context.Context) {
	report, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.Warn("registry refresh failed", "error", err)
		return
	}

	if report.CatalogError != "" {
		s.logger.Warn("registry refreshed with catalog error", "error", report.CatalogError)
	}
}
