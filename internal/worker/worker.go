package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shaiso/Conveyor/internal/agent"
	"github.com/shaiso/Conveyor/internal/backoff"
	"github.com/shaiso/Conveyor/internal/ipc"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Default configuration values.
const (
	DefaultTerminateGrace = 3 * time.Second
	defaultQueueSize      = 64
)

// Handler обрабатывает тело сообщения. Ошибка означает nack.
type Handler func(ctx context.Context, body []byte, props ipc.Properties) error

// Hooks вызываются после отправки результата agent'у.
// Вызываются из горутины Run, поэтому могут вызывать Stop.
type Hooks struct {
	OnAck  func(d ipc.Delivery, elapsed time.Duration)
	OnNack func(d ipc.Delivery, elapsed time.Duration, err error)
}

// Stats — счётчики обработанных сообщений. Переживают переподключения.
type Stats struct {
	Messages int64
	Good     int64
	Bad      int64
}

// Config — конфигурация Worker.
type Config struct {
	// URL — адрес брокера.
	URL string

	// Queue — очередь, из которой читаем.
	Queue string

	// DeadsDisabled — отвергнутые сообщения возвращаются в очередь, а не в deads.
	DeadsDisabled bool

	// Declare — режим объявления топологии (default: no).
	Declare mq.DeclareMode

	// Prefetch — QoS prefetch count (0 — без ограничения).
	Prefetch int

	// MaxSleep — потолок паузы после ошибки обработчика при выключенных deads.
	// 0 — без пауз.
	MaxSleep time.Duration

	// TerminateGrace — сколько ждать штатного отключения agent'а (default: 3s).
	TerminateGrace time.Duration

	// PollDelay — начальный интервал опроса очередей (default: 200ms).
	PollDelay time.Duration

	// QueueSize — ёмкость очередей между worker'ом и agent'ом
	// (default: prefetch + 4 или 64 без prefetch).
	QueueSize int

	Handler Handler
	Hooks   Hooks

	// TagFunc передаётся agent'у (default: mq.NewConsumerTag).
	TagFunc func() string

	Dialer  mq.Dialer
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Worker обрабатывает сообщения, которые доставляет agent.
//
// Worker владеет текущим agent'ом и парой очередей к нему.
// При каждом Connect создаются новые agent и очереди,
// счётчики сообщений сохраняются.
type Worker struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	agent *agent.Agent
	pair  ipc.Pair

	delay *backoff.Adaptive
	nack  *backoff.Nack

	stopped  atomic.Bool
	messages atomic.Int64
	good     atomic.Int64
	bad      atomic.Int64
}

// New создаёт Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Handler == nil {
		return nil, ErrNoHandler
	}
	if cfg.Queue == "" {
		return nil, mq.ErrEmptyQueue
	}
	if cfg.Dialer == nil {
		return nil, mq.ErrNoDialer
	}
	if cfg.Declare == "" {
		cfg.Declare = mq.DeclareNo
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = DefaultTerminateGrace
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
		if cfg.Prefetch > 0 {
			cfg.QueueSize = cfg.Prefetch + 4
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		cfg:     cfg,
		logger:  telemetry.WithQueue(logger, cfg.Queue),
		metrics: cfg.Metrics,
		delay:   backoff.NewAdaptive(cfg.PollDelay, cfg.PollDelay),
		nack:    backoff.NewNack(cfg.MaxSleep),
	}, nil
}

// Connect запускает нового agent'а с новой парой очередей и ждёт,
// пока он откроет соединение и канал.
//
// Если agent не смог подключиться, возвращается *agent.FaultError.
func (w *Worker) Connect(ctx context.Context) error {
	if w.agent != nil {
		w.logger.Error("previous agent is still attached while connecting, disconnecting it")
		w.Disconnect()
	}

	w.stopped.Store(false)
	w.pair = ipc.NewPair(w.cfg.QueueSize)
	w.delay.Reset()

	a, err := agent.New(agent.Config{
		URL:           w.cfg.URL,
		Queue:         w.cfg.Queue,
		DeadsDisabled: w.cfg.DeadsDisabled,
		Declare:       w.cfg.Declare,
		Prefetch:      w.cfg.Prefetch,
		PollDelay:     w.cfg.PollDelay,
		TagFunc:       w.cfg.TagFunc,
		Dialer:        w.cfg.Dialer,
		Logger:        w.logger,
	}, w.pair.ToWorker, w.pair.ToAgent)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	if err := a.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	w.agent = a
	w.logger.Debug("agent started")

	select {
	case <-a.Ready():
	case <-a.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-a.Ready():
		w.metrics.ObserveConnect(w.cfg.Queue, "ok")
		return nil
	default:
	}

	// agent завершился до открытия канала
	w.metrics.ObserveConnect(w.cfg.Queue, "failed")
	if f := a.Fault(); f != nil {
		return &agent.FaultError{Fault: *f}
	}
	return nil
}

// Run обрабатывает сообщения, пока worker не остановлен и agent жив,
// затем отключается.
//
// Возвращает *agent.FaultError, если agent завершился с ошибкой.
func (w *Worker) Run(ctx context.Context) error {
	a := w.agent
	if a == nil {
		w.logger.Error("run attempt without a connected agent")
		return ErrNotConnected
	}

	ctx = telemetry.WithLogger(ctx, w.logger)
	w.logger.Debug("running")

	for {
		if w.stopped.Load() {
			w.logger.Debug("stop requested, leaving main loop")
			break
		}
		if !a.Alive() {
			w.logger.Debug("agent is not alive, leaving main loop")
			break
		}
		if ctx.Err() != nil {
			w.logger.Debug("context cancelled, leaving main loop")
			break
		}

		m, ok := w.pair.ToWorker.TryGet()
		if !ok {
			// очередь пуста: ждём и реже проверяем в следующий раз
			backoff.Sleep(ctx, w.delay.Current())
			w.delay.Widen()
			continue
		}

		w.handle(ctx, m, true)
	}

	w.Disconnect()

	if f := a.Fault(); f != nil && !f.Clean() {
		return &agent.FaultError{Fault: *f}
	}
	return nil
}

// Stop просит Run завершиться после текущего сообщения.
// Безопасен для вызова из hook'а и из других горутин.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// IsStopped проверяет, запрошена ли остановка.
func (w *Worker) IsStopped() bool {
	return w.stopped.Load()
}

// Stats возвращает счётчики сообщений.
func (w *Worker) Stats() Stats {
	return Stats{
		Messages: w.messages.Load(),
		Good:     w.good.Load(),
		Bad:      w.bad.Load(),
	}
}

// LogStats пишет счётчики в лог.
func (w *Worker) LogStats() {
	s := w.Stats()
	w.logger.Info(fmt.Sprintf("stats: total %d good %d bad %d", s.Messages, s.Good, s.Bad),
		"total", s.Messages,
		"good", s.Good,
		"bad", s.Bad,
	)
}

// Disconnect останавливает agent'а: сначала штатно, затем, если он
// не завершился за TerminateGrace, принудительно.
// Оставшиеся в очереди сообщения не обрабатываются.
// Повторные вызовы ничего не делают.
func (w *Worker) Disconnect() {
	a := w.agent
	if a == nil {
		w.logger.Debug("already disconnected")
		return
	}

	if a.Alive() {
		w.logger.Debug("agent is alive, requesting disconnect")
		if err := w.sendToAgent(a, ipc.Shutdown()); err != nil {
			w.logger.Debug("disconnect signal not delivered", "error", err)
		}

		timer := time.NewTimer(w.cfg.TerminateGrace)
		select {
		case <-a.Done():
		case <-timer.C:
			w.logger.Error("agent did not disconnect in time, terminating",
				"grace", w.cfg.TerminateGrace,
				"state", a.State(),
			)
			a.Terminate()
		}
		timer.Stop()
	}

	a.Wait()
	w.agent = nil

	n := w.pair.ToWorker.Drain(func(m ipc.Message) {
		w.handle(context.Background(), m, false)
	})
	if n > 0 {
		w.logger.Debug("dropped inbound messages on disconnect", "count", n)
	}

	// свою входящую очередь закрываем, очередь agent'а закрывает её читатель
	w.pair.ToWorker.Close()
	w.pair.ToAgent = nil

	w.logger.Debug("disconnected")
}

// handle разбирает одно сообщение от agent'а.
// process == false — только логирование, доставки не обрабатываются.
func (w *Worker) handle(ctx context.Context, m ipc.Message, process bool) {
	switch m := m.(type) {
	case ipc.AgentFault:
		w.metrics.ObserveFault(w.cfg.Queue, string(m.Kind))
		if m.Clean() {
			w.logger.Info("agent closed", "kind", m.Kind, "reason", m.Message)
		} else {
			w.logger.Error("agent fault", "kind", m.Kind, "error", m.Error())
		}
	case ipc.Delivery:
		if process {
			w.process(ctx, m)
		}
	default:
		panic(fmt.Sprintf("worker: unexpected %T on inbound queue", m))
	}
}

// process вызывает обработчик и отправляет результат agent'у.
func (w *Worker) process(ctx context.Context, d ipc.Delivery) {
	w.messages.Add(1)
	w.metrics.ObserveDelivery(w.cfg.Queue)

	logger := telemetry.WithDeliveryTag(w.logger, d.Tag)
	logger.Log(ctx, telemetry.LevelTrace, "delivery received",
		"content_type", d.Properties.ContentType,
		"content_encoding", d.Properties.ContentEncoding,
		"headers", d.Properties.Headers,
	)

	hctx := telemetry.WithLogger(ctx, logger)
	started := time.Now()
	err := w.callHandler(hctx, d)
	elapsed := time.Since(started)

	if err == nil {
		w.delay.Narrow(elapsed)
		w.report(ipc.Outcome{Tag: d.Tag, Ack: true, Duration: elapsed})
		w.nack.Reset()
		w.good.Add(1)
		w.metrics.ObserveOutcome(w.cfg.Queue, telemetry.OutcomeAck, elapsed)

		if w.cfg.Hooks.OnAck != nil {
			w.cfg.Hooks.OnAck(d, elapsed)
		}
		return
	}

	logger.Warn("message processing failed", "error", err, "requeue", w.cfg.DeadsDisabled)

	w.report(ipc.Outcome{Tag: d.Tag, Ack: false, Requeue: w.cfg.DeadsDisabled, Duration: elapsed})
	pause := w.nack.Fail()
	w.bad.Add(1)

	outcome := telemetry.OutcomeDead
	if w.cfg.DeadsDisabled {
		outcome = telemetry.OutcomeRequeue
	}
	w.metrics.ObserveOutcome(w.cfg.Queue, outcome, elapsed)

	if w.cfg.Hooks.OnNack != nil {
		w.cfg.Hooks.OnNack(d, elapsed, err)
	}

	// без deads сообщение сразу вернётся, поэтому притормаживаем
	if w.cfg.DeadsDisabled && pause > 0 {
		logger.Debug("sleeping after failure", "pause", pause, "failures", w.nack.Failures())
		backoff.Sleep(ctx, pause)
	}
}

// callHandler вызывает обработчик, превращая панику в ошибку.
func (w *Worker) callHandler(ctx context.Context, d ipc.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return w.cfg.Handler(ctx, d.Body, d.Properties)
}

// report отправляет результат agent'у.
// Если agent уже завершился, брокер доставит сообщение повторно.
func (w *Worker) report(o ipc.Outcome) {
	err := w.sendToAgent(w.agent, o)
	switch {
	case err == nil:
	case errors.Is(err, ipc.ErrQueueClosed), errors.Is(err, context.Canceled):
		w.logger.Debug("agent is gone, outcome dropped", "delivery_tag", o.Tag, "ack", o.Ack)
	default:
		w.logger.Error("failed to report outcome", "delivery_tag", o.Tag, "error", err)
	}
}

// sendToAgent кладёт сообщение в очередь agent'а, пока тот жив.
func (w *Worker) sendToAgent(a *agent.Agent, m ipc.Message) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	return w.pair.ToAgent.Put(ctx, m)
}
