package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepResult — результат одного выполненного шага.
type StepResult struct {
	StepName    string      `json:"step_name"`
	BackendUsed string      `json:"backend_used,omitempty"`
	BackendKind BackendKind `json:"backend_kind,omitempty"`
	OutputText  string      `json:"output_text"`

	// Metadata — служебные данные ответа backend'а.
	// В запросы следующих шагов попадает только по явному include_metadata.
	Metadata map[string]any `json:"raw_backend_metadata,omitempty"`

	Status     StepStatus `json:"status"`
	Error      *ErrorInfo `json:"error,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Succeeded возвращает true для успешного шага.
func (r *StepResult) Succeeded() bool {
	return r.Status == StepStatusOK
}

// WorkflowResult — итог выполнения workflow.
type WorkflowResult struct {
	RunID  uuid.UUID    `json:"run_id"`
	Status RunStatus    `json:"status"`
	Steps  []StepResult `json:"steps"`

	// FinalOutput — вывод последнего успешного шага или пустая строка.
	FinalOutput string `json:"final_output"`

	// Error — причина прерывания для ABORTED.
	Error *ErrorInfo `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// FailedSteps возвращает количество шагов со статусом FAILED.
func (r *WorkflowResult) FailedSteps() int {
	n := 0
	for i := range r.Steps {
		if !r.Steps[i].Succeeded() {
			n++
		}
	}
	return n
}

// ErrorInfo — сериализуемое описание ошибки из таксономии.
type ErrorInfo struct {
	// Type — класс ошибки: resolution, backend, engine.
	Type string `json:"type"`

	// Kind — вид ошибки внутри класса.
	Kind ErrorKind `json:"kind"`

	Message string `json:"message"`
}
