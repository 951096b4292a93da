package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/backoff"
	"github.com/shaiso/Conveyor/internal/ipc"
	"github.com/shaiso/Conveyor/internal/mq"
)

// cancelGrace — сколько ждать уведомления о закрытии канала после того,
// как брокер закрыл поток доставок.
const cancelGrace = 100 * time.Millisecond

// Config — конфигурация Agent.
type Config struct {
	// URL — адрес брокера.
	URL string

	// Queue — очередь, из которой читаем.
	Queue string

	// DeadsDisabled — не объявлять deads exchange/queue.
	DeadsDisabled bool

	// Declare — режим объявления топологии (default: no).
	Declare mq.DeclareMode

	// Prefetch — QoS prefetch count (0 — без ограничения).
	Prefetch int

	// PollDelay — начальный интервал опроса входящей очереди (default: 200ms).
	PollDelay time.Duration

	// TagFunc генерирует consumer tag (default: mq.NewConsumerTag).
	TagFunc func() string

	Dialer mq.Dialer

	// Logger должен уже содержать атрибут queue.
	Logger *slog.Logger
}

// Agent — горутина, владеющая соединением с брокером.
type Agent struct {
	cfg    Config
	plan   mq.TopologyPlan
	logger *slog.Logger

	out *ipc.Queue // agent → worker
	in  *ipc.Queue // worker → agent

	machine *Machine
	state   atomic.Value // State
	fault   atomic.Pointer[ipc.AgentFault]

	startOnce sync.Once
	termOnce  sync.Once
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	// Поля ниже принадлежат горутине run.
	conn       mq.Connection
	ch         mq.Channel
	tag        string
	connClosed chan *amqp.Error
	chClosed   chan *amqp.Error
	delay      *backoff.Adaptive
}

// New создаёт Agent. out — очередь к worker'у, in — очередь от worker'а.
func New(cfg Config, out, in *ipc.Queue) (*Agent, error) {
	if cfg.Queue == "" {
		return nil, mq.ErrEmptyQueue
	}
	if cfg.Dialer == nil {
		return nil, mq.ErrNoDialer
	}
	if cfg.Declare == "" {
		cfg.Declare = mq.DeclareNo
	}
	if cfg.TagFunc == nil {
		cfg.TagFunc = func() string { return mq.NewConsumerTag("") }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	plan := mq.Plan(cfg.Queue, cfg.DeadsDisabled)

	a := &Agent{
		cfg:     cfg,
		plan:    plan,
		logger:  logger.With("component", "agent"),
		out:     out,
		in:      in,
		machine: NewMachine(cfg.Declare, plan.DeadsEnabled()),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		delay:   backoff.NewAdaptive(cfg.PollDelay, cfg.PollDelay),
	}
	a.state.Store(StateIdle)
	return a, nil
}

// Start запускает горутину agent'а. Отмена ctx равносильна Terminate.
func (a *Agent) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	a.startOnce.Do(func() {
		ctx, a.cancel = context.WithCancel(ctx)
		go a.run(ctx)
		err = nil
	})
	return err
}

// Alive сообщает, работает ли горутина agent'а.
func (a *Agent) Alive() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// Done закрывается, когда agent завершился.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Ready закрывается, когда соединение и канал открыты.
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

// Wait блокируется до завершения agent'а.
func (a *Agent) Wait() {
	<-a.done
}

// State возвращает текущее состояние.
func (a *Agent) State() State {
	return a.state.Load().(State)
}

// Fault возвращает первую ошибку agent'а или nil.
func (a *Agent) Fault() *ipc.AgentFault {
	return a.fault.Load()
}

// Terminate принудительно останавливает agent: отменяет контекст
// и закрывает соединение. Повторные вызовы ничего не делают.
func (a *Agent) Terminate() {
	a.termOnce.Do(func() {
		if a.cancel == nil {
			return
		}
		a.logger.Warn("terminating agent", "state", a.State())
		a.cancel()
	})
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.done)
	defer a.cancel()

	a.step(EventStart)

	for {
		state := a.machine.State()
		if state.IsTerminal() {
			return
		}

		if ctx.Err() != nil && state != StateDisconnecting {
			a.step(EventShutdown)
			continue
		}

		switch state {
		case StateConnecting:
			a.finish(ctx, ipc.FaultConnectionOpen, a.connect(ctx))
		case StateChannelOpening:
			a.finish(ctx, ipc.FaultChannelOpen, a.openChannel())
		case StateDeclaringDeadExchange:
			a.finish(ctx, ipc.FaultTopology, mq.DeclareDeadExchange(a.ch, a.plan))
		case StateDeclaringDeadQueue:
			a.finish(ctx, ipc.FaultTopology, mq.DeclareDeadQueue(a.ch, a.plan))
		case StateBindingDeadQueue:
			a.finish(ctx, ipc.FaultTopology, mq.BindDeadQueue(a.ch, a.plan))
		case StateDeclaringMainQueue:
			err := mq.DeclareMainQueue(a.ch, a.plan)
			if err == nil {
				a.logger.Info("topology declared", "topology", a.plan.String())
			}
			a.finish(ctx, ipc.FaultTopology, err)
		case StateSettingQoS:
			a.finish(ctx, ipc.FaultQoS, a.setQoS())
		case StateConsuming:
			a.step(a.consume(ctx))
		case StateDisconnecting:
			a.disconnect()
			a.step(EventDone)
		}
	}
}

// step применяет событие к машине и публикует новое состояние.
func (a *Agent) step(ev Event) {
	prev := a.machine.State()
	next := a.machine.Step(ev)
	a.state.Store(next)

	if next.Connected() {
		a.readyOnce.Do(func() { close(a.ready) })
	}
	if prev != next {
		a.logger.Debug("agent state changed", "from", prev, "to", next, "event", ev)
	}
}

// finish переводит машину по результату действия.
func (a *Agent) finish(ctx context.Context, kind ipc.FaultKind, err error) {
	if err == nil {
		a.step(EventDone)
		return
	}
	if ctx.Err() != nil {
		a.step(EventShutdown)
		return
	}
	a.report(ctx, newFault(kind, err))
	a.step(EventFailed)
}

func (a *Agent) connect(ctx context.Context) error {
	conn, err := a.cfg.Dialer.Dial(ctx, a.cfg.URL)
	if err != nil {
		return err
	}
	a.conn = conn
	a.connClosed = conn.NotifyClose(make(chan *amqp.Error, 1))

	// принудительная остановка закрывает соединение, что прерывает
	// любую зависшую операцию на канале
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-a.done:
		}
	}()

	a.logger.Debug("connection opened")
	return nil
}

func (a *Agent) openChannel() error {
	ch, err := a.conn.Channel()
	if err != nil {
		return err
	}
	a.ch = ch
	a.chClosed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

func (a *Agent) setQoS() error {
	if err := a.ch.Qos(a.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos %d: %w", a.cfg.Prefetch, err)
	}
	return nil
}

// consume подписывается на очередь и обслуживает её до ошибки или отключения.
func (a *Agent) consume(ctx context.Context) Event {
	tag := a.cfg.TagFunc()
	if tag == "" {
		a.report(ctx, newFault(ipc.FaultConsume, ErrEmptyConsumerTag))
		return EventFailed
	}

	deliveries, err := mq.Subscribe(a.ch, a.cfg.Queue, tag)
	if err != nil {
		if ctx.Err() != nil {
			return EventShutdown
		}
		a.report(ctx, newFault(ipc.FaultConsume, err))
		return EventFailed
	}
	a.tag = tag

	a.logger.Info("consuming", "consumer_tag", tag, "prefetch", a.cfg.Prefetch)

	timer := time.NewTimer(a.delay.Current())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return EventShutdown

		case d, ok := <-deliveries:
			if !ok {
				a.tag = ""
				return a.consumerGone(ctx)
			}
			if !a.forward(ctx, mq.NewDelivery(d)) {
				return EventShutdown
			}

		case err, ok := <-a.chClosed:
			a.chClosed = nil
			a.report(ctx, closeFault(ipc.FaultChannelClosed, err, ok))
			return EventFailed

		case err, ok := <-a.connClosed:
			a.connClosed = nil
			a.report(ctx, closeFault(ipc.FaultConnectionClosed, err, ok))
			return EventFailed

		case <-timer.C:
			if a.pollInbound() {
				return EventShutdown
			}
			timer.Reset(a.delay.Current())
			a.delay.Widen()
		}
	}
}

// consumerGone разбирает закрытие потока доставок: закрытие канала
// или соединения приходит отдельным уведомлением чуть позже.
func (a *Agent) consumerGone(ctx context.Context) Event {
	grace := time.NewTimer(cancelGrace)
	defer grace.Stop()

	select {
	case err, ok := <-a.chClosed:
		a.chClosed = nil
		a.report(ctx, closeFault(ipc.FaultChannelClosed, err, ok))
	case err, ok := <-a.connClosed:
		a.connClosed = nil
		a.report(ctx, closeFault(ipc.FaultConnectionClosed, err, ok))
	case <-ctx.Done():
		return EventShutdown
	case <-grace.C:
		a.report(ctx, newFault(ipc.FaultConsume, ErrConsumerCancelled))
	}
	return EventFailed
}

// forward передаёт доставку worker'у. Пока очередь worker'а заполнена,
// agent продолжает применять его результаты, иначе обе стороны ждали бы друг друга.
// Возвращает false, если нужно отключаться.
func (a *Agent) forward(ctx context.Context, d ipc.Delivery) bool {
	for {
		ok, err := a.out.TryPut(d)
		if err != nil {
			a.logger.Debug("worker queue closed, dropping delivery", "delivery_tag", d.Tag)
			return false
		}
		if ok {
			return true
		}

		if a.pollInbound() {
			return false
		}
		if err := backoff.Sleep(ctx, a.delay.Current()); err != nil {
			return false
		}
	}
}

// pollInbound забирает всё, что прислал worker.
// Возвращает true, если получен сигнал отключения.
func (a *Agent) pollInbound() bool {
	for {
		m, ok := a.in.TryGet()
		if !ok {
			return false
		}

		switch m := m.(type) {
		case ipc.Outcome:
			a.settle(m)
		case ipc.AgentFault:
			a.logger.Debug("disconnect requested by worker", "reason", m.Message)
			return true
		default:
			panic(fmt.Sprintf("agent: unexpected %T on inbound queue", m))
		}
	}
}

func (a *Agent) settle(o ipc.Outcome) {
	if err := mq.Settle(a.ch, o); err != nil {
		// закрытие канала придёт отдельным уведомлением
		a.logger.Error("failed to settle delivery", "delivery_tag", o.Tag, "ack", o.Ack, "error", err)
		return
	}

	if o.Ack && o.Duration > 0 {
		a.delay.Narrow(o.Duration)
	}
}

// disconnect закрывает подписку, канал и соединение. Повторный вызов безопасен.
func (a *Agent) disconnect() {
	if a.ch != nil && a.tag != "" {
		if err := a.ch.Cancel(a.tag, false); err != nil {
			a.logger.Debug("cancel consumer failed", "consumer_tag", a.tag, "error", err)
		}
	}
	a.tag = ""

	if a.ch != nil {
		if err := a.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			a.logger.Debug("close channel failed", "error", err)
		}
		a.ch = nil
	}

	if a.conn != nil {
		if !a.conn.IsClosed() {
			if err := a.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				a.logger.Debug("close connection failed", "error", err)
			}
		}
		a.conn = nil
	}

	a.logger.Debug("disconnected")
}

// report логирует fault и отправляет его worker'у.
func (a *Agent) report(ctx context.Context, f ipc.AgentFault) {
	a.fault.CompareAndSwap(nil, &f)

	if f.Clean() {
		a.logger.Info("agent closed", "kind", f.Kind, "reason", f.Message)
	} else {
		a.logger.Error("agent fault", "kind", f.Kind, "error", f.Error())
	}

	if err := a.out.Put(ctx, f); err != nil {
		a.logger.Debug("fault not delivered to worker", "kind", f.Kind, "error", err)
	}
}

// newFault строит AgentFault из ошибки, сохраняя код ответа брокера.
func newFault(kind ipc.FaultKind, err error) ipc.AgentFault {
	f := ipc.AgentFault{Kind: kind, Message: err.Error()}
	if code, ok := mq.ReplyCode(err); ok {
		f.Code = ipc.Code(code)
	}
	return f
}

// closeFault строит AgentFault из уведомления NotifyClose.
// Закрытие без ошибки считается штатным.
func closeFault(kind ipc.FaultKind, err *amqp.Error, ok bool) ipc.AgentFault {
	if !ok || err == nil {
		return ipc.AgentFault{Kind: kind, Code: ipc.Code(200), Message: "closed"}
	}
	return ipc.AgentFault{Kind: kind, Code: ipc.Code(err.Code), Message: err.Reason}
}
