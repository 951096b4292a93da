package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/ipc"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ErrNoSink — Recorder создан без Sink.
var ErrNoSink = errors.New("journal sink is nil")

// Entry — запись о результате обработки одной доставки.
type Entry struct {
	ID          uuid.UUID
	Queue       string
	DeliveryTag uint64
	MessageID   string
	Redelivered bool
	Ack         bool
	Requeue     bool
	Duration    time.Duration
	Error       string
	RecordedAt  time.Time
}

// Outcome возвращает ack, requeue или dead.
func (e Entry) Outcome() string {
	switch {
	case e.Ack:
		return telemetry.OutcomeAck
	case e.Requeue:
		return telemetry.OutcomeRequeue
	default:
		return telemetry.OutcomeDead
	}
}

// NewEntry создаёт запись по доставке.
func NewEntry(queue string, d ipc.Delivery, ack, requeue bool, elapsed time.Duration, err error) Entry {
	e := Entry{
		ID:          uuid.New(),
		Queue:       queue,
		DeliveryTag: d.Tag,
		MessageID:   d.Properties.MessageID,
		Redelivered: d.Properties.Redelivered,
		Ack:         ack,
		Requeue:     requeue,
		Duration:    elapsed,
		RecordedAt:  time.Now().UTC(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Sink — хранилище записей журнала.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Totals — Sink, который ведёт счётчики результатов по очереди.
// Ключи: total, ack, requeue, dead.
type Totals interface {
	Stats(ctx context.Context, queue string) (map[string]int64, error)
}
