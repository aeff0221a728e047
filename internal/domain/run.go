package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — запись журнала о выполнении workflow.
//
// Run создаётся когда:
// - Workflow выполнен синхронно через API (сразу с результатом)
// - Workflow поставлен в очередь (?async=true) и ждёт worker'а
//
// Хранится только результат; определение workflow живёт внутри Request
// как часть записи и отдельно не версионируется.
type Run struct {
	// ID — уникальный идентификатор run, совпадает с WorkflowResult.RunID.
	ID uuid.UUID `json:"id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Request — исходный запрос.
	Request WorkflowRequest `json:"request"`

	// Result — итог выполнения. Nil, пока run не завершён.
	Result *WorkflowResult `json:"result,omitempty"`

	// Error — текст ошибки, если run не удалось выполнить (невалидный запрос и т.п.).
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(req WorkflowRequest) *Run {
	return &Run{
		ID:        uuid.New(),
		Status:    RunStatusPending,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// Finish сохраняет результат и его финальный статус.
func (r *Run) Finish(result *WorkflowResult) {
	r.Result = result
	r.Status = result.Status
	if r.StartedAt == nil {
		started := result.StartedAt
		r.StartedAt = &started
	}
	finished := result.FinishedAt
	r.FinishedAt = &finished
	if result.Error != nil {
		r.Error = result.Error.Message
	}
}

// MarkAborted завершает run без выполнения шагов.
func (r *Run) MarkAborted(err string) {
	now := time.Now().UTC()
	r.Status = RunStatusAborted
	r.FinishedAt = &now
	r.Error = err
}
