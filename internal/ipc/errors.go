package ipc

import "errors"

var (
	// ErrNilMessage — попытка положить nil в очередь.
	ErrNilMessage = errors.New("nil message")

	// ErrQueueClosed — очередь закрыта получателем.
	ErrQueueClosed = errors.New("queue closed")
)
