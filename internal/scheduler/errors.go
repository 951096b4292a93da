package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrInvalidSpec — некорректное cron-выражение.
	ErrInvalidSpec = errors.New("invalid schedule spec")

	// ErrEmptyJob — задача без функции.
	ErrEmptyJob = errors.New("empty job")
)
