package orchestrator

import "errors"

// Ошибки engine.
var (
	// ErrNoBackends — реестр пуст или все backend'ы недоступны.
	ErrNoBackends = errors.New("no backends available")

	// ErrInvalidTransition — недопустимый переход состояния run.
	ErrInvalidTransition = errors.New("invalid run state transition")
)
