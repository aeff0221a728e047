package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/mq"
	"github.com/shaiso/Relay/internal/repo"
	"github.com/shaiso/Relay/internal/telemetry"
)

// handleSubmitted обрабатывает сообщение из очереди workflows.submitted.
func (w *Worker) handleSubmitted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.WorkflowSubmittedPayload](&delivery.Message)
	if err != nil {
		return mq.Permanent(fmt.Errorf("parse workflow.submitted: %w", err))
	}

	err = w.processRun(ctx, payload.RunID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRunNotPending):
		// Run уже подхватил polling или другой worker
		w.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
		return nil
	case errors.Is(err, ErrRunNotFound):
		return mq.Permanent(err)
	default:
		return err
	}
}

// processRun берёт PENDING run в работу, выполняет и сохраняет итог.
func (w *Worker) processRun(ctx context.Context, runID uuid.UUID) error {
	// 1. Загружаем run
	run, err := w.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}

	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	// 2. Атомарно забираем run
	if err := w.runs.Claim(ctx, run); err != nil {
		if errors.Is(err, repo.ErrAlreadyClaimed) {
			return ErrRunNotPending
		}
		return fmt.Errorf("claim run: %w", err)
	}

	logger := telemetry.WithRunID(w.logger, run.ID.String())
	logger.Info("run claimed", "steps", len(run.Request.Steps))

	// 3. Выполняем
	result, execErr := w.runner.Execute(ctx, run.ID, &run.Request)
	if execErr != nil {
		// Выполнение не началось (невалидный запрос, нет backend'ов)
		run.MarkAborted(execErr.Error())
		logger.Warn("run rejected", "error", execErr)
	} else {
		run.Finish(result)
	}

	// 4. Сохраняем итог даже если ctx уже отменён
	saveCtx := context.WithoutCancel(ctx)
	if err := w.runs.Update(saveCtx, run); err != nil {
		return fmt.Errorf("update finished run: %w", err)
	}

	logger.Info("run finished", "status", run.Status, "duration_ms", run.Duration().Milliseconds())

	w.notify(saveCtx, run)
	return nil
}

// notify публикует workflow.finished. Сбой публикации не откатывает run.
func (w *Worker) notify(ctx context.Context, run *domain.Run) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.PublishWorkflowFinished(ctx, run); err != nil {
		w.logger.Warn("failed to publish workflow.finished", "run_id", run.ID, "error", err)
	}
}
