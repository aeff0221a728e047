package domain

// RunStatus — статус выполнения workflow run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ ABORTED
//
// Других переходов нет: завершённый run не перезапускается.
type RunStatus string

const (
	// RunStatusPending — run принят, шаги ещё не выполнялись.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — шаги выполняются.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — все шаги выполнены согласно политике ошибок.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusAborted — выполнение остановлено на первом обязательном сбое или отменой.
	RunStatusAborted RunStatus = "ABORTED"
)

// IsValid проверяет, что статус известен.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusAborted:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted
}

// CanTransitionTo проверяет допустимость перехода next из текущего статуса.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusAborted
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusAborted
	default:
		return false
	}
}

// StepStatus — итог выполнения одного шага.
type StepStatus string

const (
	StepStatusOK     StepStatus = "OK"
	StepStatusFailed StepStatus = "FAILED"
)

// FailurePolicy — поведение engine при сбое шага.
type FailurePolicy string

const (
	// FailurePolicyAbort — остановить workflow на первом сбое (по умолчанию).
	FailurePolicyAbort FailurePolicy = "abort"

	// FailurePolicyContinue — записать сбой и перейти к следующему шагу.
	FailurePolicyContinue FailurePolicy = "continue"
)

// IsValid проверяет, что политика известна. Пустая строка допустима.
func (p FailurePolicy) IsValid() bool {
	switch p {
	case "", FailurePolicyAbort, FailurePolicyContinue:
		return true
	default:
		return false
	}
}

// Role — роль сообщения в чате.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid проверяет роль. Пустая роль допустима и означает user.
func (r Role) IsValid() bool {
	switch r {
	case "", RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// OrDefault возвращает user для пустой роли.
func (r Role) OrDefault() Role {
	if r == "" {
		return RoleUser
	}
	return r
}

// BackendKind — вид backend'а.
type BackendKind string

const (
	// BackendKindLocal — локальный chat endpoint по умолчанию.
	BackendKindLocal BackendKind = "local"

	// BackendKindExternalHTTP — именованный внешний HTTP сервер.
	BackendKindExternalHTTP BackendKind = "external-http"

	// BackendKindRemoteAgent — удалённый агент по WebSocket.
	BackendKindRemoteAgent BackendKind = "remote-agent"
)

// Availability — последнее известное состояние backend'а.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityUnknown     Availability = "unknown"
)
