package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed — run уже взят другим worker'ом.
	ErrAlreadyClaimed = errors.New("run already claimed")
)
