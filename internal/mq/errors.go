package mq

import "errors"

// Ошибки слоя RabbitMQ.
var (
	// ErrNotConnected — канал ещё не открыт или уже закрыт.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidDeclareMode — неизвестный режим объявления очередей.
	ErrInvalidDeclareMode = errors.New("invalid declare mode")

	// ErrEmptyQueue — не указано имя очереди.
	ErrEmptyQueue = errors.New("queue name is mandatory")

	// ErrNoDialer — не передана реализация Dialer.
	ErrNoDialer = errors.New("dialer is not set")
)
