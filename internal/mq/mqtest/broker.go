package mqtest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/mq"
)

// Broker — брокер в памяти.
type Broker struct {
	mu sync.Mutex

	queues    map[string]*queue
	exchanges map[string]string
	bindings  map[string]map[string][]string // exchange → routing key → queues
	consumers []*consumer
	conns     []*Conn

	dialErrs []error
	failures map[string]error
	hangs    map[string]bool
	dials    int
	ops      []string
	ctagSeq  int
}

type queue struct {
	name  string
	args  amqp.Table
	ready []message
}

type message struct {
	pub         amqp.Publishing
	exchange    string
	key         string
	redelivered bool
}

type consumer struct {
	tag        string
	queue      string
	ch         *Channel
	deliveries chan amqp.Delivery
}

// New создаёт пустой брокер.
func New() *Broker {
	return &Broker{
		queues:    make(map[string]*queue),
		exchanges: make(map[string]string),
		bindings:  make(map[string]map[string][]string),
		failures:  make(map[string]error),
		hangs:     make(map[string]bool),
	}
}

var _ mq.Dialer = (*Broker)(nil)

// Dial открывает соединение. Ошибки из FailDial возвращаются по одной на вызов.
func (b *Broker) Dial(ctx context.Context, url string) (mq.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.hangs["connection.open"] {
		b.dials++
		b.mu.Unlock()
		// как недоступный брокер: dial завершается только отменой ctx
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer b.mu.Unlock()

	b.dials++
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		return nil, err
	}

	conn := &Conn{b: b, done: make(chan struct{})}
	b.conns = append(b.conns, conn)
	b.logLocked("connection.open")
	return conn, nil
}

// FailDial задаёт ошибки для следующих вызовов Dial.
func (b *Broker) FailDial(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErrs = append(b.dialErrs, errs...)
}

// FailNext заставляет следующую операцию op завершиться ошибкой err.
// Если err — *amqp.Error, канал закрывается с этой ошибкой, как это делает RabbitMQ.
//
// Операции: channel.open, exchange.declare, queue.declare, queue.bind,
// basic.qos, basic.consume, basic.publish.
func (b *Broker) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

// Hang заставляет операцию op (basic.cancel или channel.close) висеть,
// пока соединение не будет закрыто. connection.open висит до отмены ctx.
func (b *Broker) Hang(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hangs[op] = true
}

// Dials возвращает число вызовов Dial.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Ops возвращает журнал операций.
func (b *Broker) Ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

// HasQueue проверяет, объявлена ли очередь.
func (b *Broker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

// HasExchange проверяет, объявлен ли exchange.
func (b *Broker) HasExchange(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.exchanges[name]
	return ok
}

// QueueArgs возвращает аргументы очереди.
func (b *Broker) QueueArgs(name string) amqp.Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q.args
	}
	return nil
}

// Ready возвращает число сообщений, ожидающих доставки.
func (b *Broker) Ready(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.ready)
	}
	return 0
}

// Messages возвращает копии сообщений, ожидающих доставки.
func (b *Broker) Messages(name string) []amqp.Publishing {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	out := make([]amqp.Publishing, 0, len(q.ready))
	for _, m := range q.ready {
		out = append(out, m.pub)
	}
	return out
}

// Unacked возвращает общее число неподтверждённых доставок.
func (b *Broker) Unacked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conns {
		for _, ch := range c.channels {
			n += len(ch.unacked)
		}
	}
	return n
}

// Consumers возвращает число активных подписчиков очереди.
func (b *Broker) Consumers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.consumers {
		if c.queue == name {
			n++
		}
	}
	return n
}

// DeclareQueue объявляет очередь напрямую, минуя клиента.
func (b *Broker) DeclareQueue(name string, args amqp.Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = &queue{name: name, args: args}
	}
}

// Enqueue кладёт сообщение в очередь напрямую.
func (b *Broker) Enqueue(name string, pub amqp.Publishing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = &queue{name: name}
		b.queues[name] = q
	}
	q.ready = append(q.ready, message{pub: pub, key: name})
	b.dispatchLocked()
}

// DropConnections закрывает все соединения со стороны сервера.
func (b *Broker) DropConnections(code int, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.shutdownLocked(&amqp.Error{Code: code, Reason: reason, Server: true})
	}
}

// OpenConnections возвращает число незакрытых соединений.
func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conns {
		if !c.closed {
			n++
		}
	}
	return n
}

func (b *Broker) logLocked(format string, args ...any) {
	b.ops = append(b.ops, fmt.Sprintf(format, args...))
}

// takeFailureLocked возвращает подготовленную ошибку для op.
func (b *Broker) takeFailureLocked(op string) error {
	err, ok := b.failures[op]
	if !ok {
		return nil
	}
	delete(b.failures, op)
	return err
}

// routeLocked кладёт сообщение в очереди согласно exchange и ключу.
func (b *Broker) routeLocked(exchange, key string, m message) {
	if exchange == "" {
		if q, ok := b.queues[key]; ok {
			q.ready = append(q.ready, m)
		}
		return
	}

	for _, name := range b.bindings[exchange][key] {
		if q, ok := b.queues[name]; ok {
			q.ready = append(q.ready, m)
		}
	}
}

// deadLetterLocked отправляет отвергнутое сообщение в deads exchange очереди.
func (b *Broker) deadLetterLocked(q *queue, m message) {
	exchange, _ := q.args[mq.ArgDeadLetterExchange].(string)
	if exchange == "" {
		return
	}
	key, _ := q.args[mq.ArgDeadLetterRoutingKey].(string)
	if key == "" {
		key = m.key
	}
	m.redelivered = false
	b.routeLocked(exchange, key, m)
}

// dispatchLocked раздаёт готовые сообщения подписчикам с учётом prefetch.
func (b *Broker) dispatchLocked() {
	for _, c := range b.consumers {
		q, ok := b.queues[c.queue]
		if !ok {
			continue
		}
		for len(q.ready) > 0 && c.ch.hasCapacityLocked() {
			m := q.ready[0]
			q.ready = q.ready[1:]
			c.ch.deliverLocked(c, q, m)
		}
	}
}

func (b *Broker) removeConsumersLocked(ch *Channel) {
	kept := b.consumers[:0]
	for _, c := range b.consumers {
		if c.ch == ch {
			close(c.deliveries)
			continue
		}
		kept = append(kept, c)
	}
	b.consumers = kept
}

func sameArgs(a, b amqp.Table) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
