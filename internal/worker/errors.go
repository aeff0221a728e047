package worker

import "errors"

// Ошибки воркера.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotPending — run уже выполняется или завершён.
	ErrRunNotPending = errors.New("run is not in PENDING status")
)
