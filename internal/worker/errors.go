package worker

import "errors"

// Ошибки воркера.
var (
	// ErrNoHandler — не задан обработчик сообщений.
	ErrNoHandler = errors.New("message handler is not set")

	// ErrNotConnected — Run вызван без Connect.
	ErrNotConnected = errors.New("worker is not connected")

	// ErrHandlerPanic — обработчик запаниковал.
	ErrHandlerPanic = errors.New("handler panicked")
)
