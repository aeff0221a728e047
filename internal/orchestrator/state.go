package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
)

// RunState — состояние выполнения одного run в памяти.
//
// RunState создаётся в статусе PENDING, когда Engine принимает запрос,
// и живёт до сборки WorkflowResult. Принадлежит одной горутине.
//
// Содержит:
//   - Статус run и время переходов
//   - ExecutionContext с историей шагов
//   - Причину прерывания для ABORTED
type RunState struct {
	runID  uuid.UUID
	status domain.RunStatus

	// Context — накопленные результаты шагов.
	Context *engine.ExecutionContext

	abortErr   error
	startedAt  time.Time
	finishedAt time.Time
}

// NewRunState создаёт RunState в статусе PENDING.
func NewRunState(runID uuid.UUID, req *domain.WorkflowRequest) *RunState {
	ec := engine.NewExecutionContext(req.Input)
	for i := range req.Steps {
		if req.Steps[i].Name == engine.InputReference {
			ec.ShadowInput()
			break
		}
	}

	return &RunState{
		runID:   runID,
		status:  domain.RunStatusPending,
		Context: ec,
	}
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.runID
}

// Status возвращает текущий статус.
func (s *RunState) Status() domain.RunStatus {
	return s.status
}

// transition выполняет переход статуса.
func (s *RunState) transition(next domain.RunStatus) error {
	if !s.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.status, next)
	}
	s.status = next
	return nil
}

// Start переводит run в RUNNING.
func (s *RunState) Start() error {
	if err := s.transition(domain.RunStatusRunning); err != nil {
		return err
	}
	s.startedAt = time.Now().UTC()
	return nil
}

// Record добавляет результат шага.
func (s *RunState) Record(result domain.StepResult) {
	s.Context.Append(result)
}

// Complete переводит run в COMPLETED.
func (s *RunState) Complete() error {
	if err := s.transition(domain.RunStatusCompleted); err != nil {
		return err
	}
	s.finishedAt = time.Now().UTC()
	return nil
}

// Abort переводит run в ABORTED с причиной err.
func (s *RunState) Abort(err error) error {
	if terr := s.transition(domain.RunStatusAborted); terr != nil {
		return terr
	}
	s.abortErr = err
	s.finishedAt = time.Now().UTC()
	return nil
}

// Result собирает WorkflowResult. Вызывается после завершения run.
func (s *RunState) Result() *domain.WorkflowResult {
	return &domain.WorkflowResult{
		RunID:       s.runID,
		Status:      s.status,
		Steps:       s.Context.Results(),
		FinalOutput: s.Context.FinalOutput(),
		Error:       domain.ErrorInfoFrom(s.abortErr),
		StartedAt:   s.startedAt,
		FinishedAt:  s.finishedAt,
	}
}
