package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/ipc"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

const defaultRecordTimeout = 5 * time.Second

// Recorder пишет результаты из hook'ов worker'а в Sink.
// Ошибки записи логируются и не влияют на обработку.
type Recorder struct {
	sink          Sink
	queue         string
	deadsDisabled bool
	timeout       time.Duration
	logger        *slog.Logger
}

// NewRecorder создаёт Recorder для очереди queue.
// deadsDisabled определяет, чем был nack: requeue или dead.
func NewRecorder(sink Sink, queue string, deadsDisabled bool, logger *slog.Logger) (*Recorder, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:          sink,
		queue:         queue,
		deadsDisabled: deadsDisabled,
		timeout:       defaultRecordTimeout,
		logger:        logger,
	}, nil
}

// Hooks возвращает hook'и, которые пишут в журнал и затем вызывают next.
// У nil *Recorder это сам next.
func (r *Recorder) Hooks(next worker.Hooks) worker.Hooks {
	if r == nil {
		return next
	}
	return worker.Hooks{
		OnAck: func(d ipc.Delivery, elapsed time.Duration) {
			r.record(NewEntry(r.queue, d, true, false, elapsed, nil))
			if next.OnAck != nil {
				next.OnAck(d, elapsed)
			}
		},
		OnNack: func(d ipc.Delivery, elapsed time.Duration, err error) {
			r.record(NewEntry(r.queue, d, false, r.deadsDisabled, elapsed, err))
			if next.OnNack != nil {
				next.OnNack(d, elapsed, err)
			}
		},
	}
}

func (r *Recorder) record(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.sink.Record(ctx, e); err != nil {
		r.logger.Warn("failed to record outcome",
			"queue", e.Queue,
			"delivery_tag", e.DeliveryTag,
			"outcome", e.Outcome(),
			"error", err,
		)
	}
}

// LogTotals пишет в лог счётчики очереди из журнала,
// если Sink их ведёт. Счётчики общие для всех consumer'ов очереди.
// У nil *Recorder ничего не делает.
func (r *Recorder) LogTotals() {
	if r == nil {
		return
	}
	totals, ok := r.sink.(Totals)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	stats, err := totals.Stats(ctx, r.queue)
	if err != nil {
		r.logger.Warn("failed to read journal totals", "queue", r.queue, "error", err)
		return
	}

	r.logger.Info("journal totals",
		"queue", r.queue,
		FieldTotal, stats[FieldTotal],
		telemetry.OutcomeAck, stats[telemetry.OutcomeAck],
		telemetry.OutcomeRequeue, stats[telemetry.OutcomeRequeue],
		telemetry.OutcomeDead, stats[telemetry.OutcomeDead],
	)
}
