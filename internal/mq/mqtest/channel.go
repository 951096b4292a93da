package mqtest

import (
	"context"
	"fmt"
	"slices"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/mq"
)

// Коды ответа AMQP, которые возвращает брокер.
const (
	codeNotFound           = 404
	codePreconditionFailed = 406
)

// Channel — канал брокера в памяти.
type Channel struct {
	b        *Broker
	conn     *Conn
	closed   bool
	notify   []chan *amqp.Error
	prefetch int
	nextTag  uint64
	unacked  map[uint64]*unacked
}

type unacked struct {
	queue string
	msg   message
}

var _ mq.Channel = (*Channel)(nil)

// ExchangeDeclare объявляет exchange. Поддерживается только direct.
func (ch *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.beginLocked("exchange.declare"); err != nil {
		return err
	}
	if existing, ok := ch.b.exchanges[name]; ok && existing != kind {
		return ch.failLocked(codePreconditionFailed,
			fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg 'type' for exchange '%s'", name))
	}

	ch.b.exchanges[name] = kind
	ch.b.logLocked("exchange.declare %s", name)
	return nil
}

// QueueDeclare объявляет очередь. Повторное объявление с другими аргументами — ошибка 406.
func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.beginLocked("queue.declare"); err != nil {
		return amqp.Queue{}, err
	}

	q, ok := ch.b.queues[name]
	if ok && !sameArgs(q.args, args) {
		return amqp.Queue{}, ch.failLocked(codePreconditionFailed,
			fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg for queue '%s'", name))
	}
	if !ok {
		q = &queue{name: name, args: args}
		ch.b.queues[name] = q
	}

	ch.b.logLocked("queue.declare %s", name)
	return amqp.Queue{Name: name, Messages: len(q.ready)}, nil
}

// QueueBind привязывает очередь к exchange по ключу.
func (ch *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.beginLocked("queue.bind"); err != nil {
		return err
	}
	if _, ok := ch.b.exchanges[exchange]; !ok {
		return ch.failLocked(codeNotFound, fmt.Sprintf("NOT_FOUND - no exchange '%s'", exchange))
	}
	if _, ok := ch.b.queues[name]; !ok {
		return ch.failLocked(codeNotFound, fmt.Sprintf("NOT_FOUND - no queue '%s'", name))
	}

	keys, ok := ch.b.bindings[exchange]
	if !ok {
		keys = make(map[string][]string)
		ch.b.bindings[exchange] = keys
	}
	if !slices.Contains(keys[key], name) {
		keys[key] = append(keys[key], name)
	}

	ch.b.logLocked("queue.bind %s %s %s", name, exchange, key)
	return nil
}

// Qos задаёт prefetch для канала.
func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.beginLocked("basic.qos"); err != nil {
		return err
	}
	ch.prefetch = prefetchCount
	ch.b.logLocked("basic.qos %d", prefetchCount)
	return nil
}

// Consume подписывается на очередь. Несуществующая очередь — ошибка 404.
func (ch *Channel) Consume(queueName, tag string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.beginLocked("basic.consume"); err != nil {
		return nil, err
	}
	if _, ok := ch.b.queues[queueName]; !ok {
		return nil, ch.failLocked(codeNotFound, fmt.Sprintf("NOT_FOUND - no queue '%s'", queueName))
	}

	if tag == "" {
		ch.b.ctagSeq++
		tag = fmt.Sprintf("ctag-%d", ch.b.ctagSeq)
	}

	c := &consumer{
		tag:        tag,
		queue:      queueName,
		ch:         ch,
		deliveries: make(chan amqp.Delivery, 256),
	}
	ch.b.consumers = append(ch.b.consumers, c)
	ch.b.logLocked("basic.consume %s", queueName)
	ch.b.dispatchLocked()
	return c.deliveries, nil
}

// Cancel отменяет подписку и закрывает её канал доставок.
func (ch *Channel) Cancel(tag string, noWait bool) error {
	if ch.hang("basic.cancel") {
		return amqp.ErrClosed
	}

	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}

	kept := ch.b.consumers[:0]
	for _, c := range ch.b.consumers {
		if c.ch == ch && c.tag == tag {
			close(c.deliveries)
			continue
		}
		kept = append(kept, c)
	}
	ch.b.consumers = kept

	ch.b.logLocked("basic.cancel %s", tag)
	return nil
}

// Ack подтверждает доставку. Неизвестный тег закрывает канал с кодом 406.
func (ch *Channel) Ack(tag uint64, multiple bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}
	if _, ok := ch.unacked[tag]; !ok {
		return ch.failLocked(codePreconditionFailed, fmt.Sprintf("PRECONDITION_FAILED - unknown delivery tag %d", tag))
	}

	delete(ch.unacked, tag)
	ch.b.logLocked("basic.ack %d", tag)
	ch.b.dispatchLocked()
	return nil
}

// Nack отвергает доставку: возвращает в очередь или отправляет в deads.
func (ch *Channel) Nack(tag uint64, multiple, requeue bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}
	u, ok := ch.unacked[tag]
	if !ok {
		return ch.failLocked(codePreconditionFailed, fmt.Sprintf("PRECONDITION_FAILED - unknown delivery tag %d", tag))
	}
	delete(ch.unacked, tag)

	if q, ok := ch.b.queues[u.queue]; ok {
		if requeue {
			u.msg.redelivered = true
			q.ready = append([]message{u.msg}, q.ready...)
		} else {
			ch.b.deadLetterLocked(q, u.msg)
		}
	}

	ch.b.logLocked("basic.nack %d requeue=%t", tag, requeue)
	ch.b.dispatchLocked()
	return nil
}

// PublishWithContext публикует сообщение в exchange.
func (ch *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if err := ch.beginLocked("basic.publish"); err != nil {
		return err
	}
	if _, ok := ch.b.exchanges[exchange]; exchange != "" && !ok {
		return ch.failLocked(codeNotFound, fmt.Sprintf("NOT_FOUND - no exchange '%s'", exchange))
	}

	ch.b.routeLocked(exchange, key, message{pub: msg, exchange: exchange, key: key})
	ch.b.logLocked("basic.publish %s %s", exchange, key)
	ch.b.dispatchLocked()
	return nil
}

// NotifyClose регистрирует получателя ошибки закрытия канала.
func (ch *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		close(receiver)
		return receiver
	}
	ch.notify = append(ch.notify, receiver)
	return receiver
}

// Close закрывает канал. Неподтверждённые сообщения возвращаются в очередь.
func (ch *Channel) Close() error {
	if ch.hang("channel.close") {
		return amqp.ErrClosed
	}

	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	if ch.closed {
		return amqp.ErrClosed
	}
	ch.b.logLocked("channel.close")
	ch.shutdownLocked(nil)
	ch.b.dispatchLocked()
	return nil
}

// hang блокируется до закрытия соединения, если для op задан Hang.
// Возвращает true, если ожидание состоялось.
func (ch *Channel) hang(op string) bool {
	ch.b.mu.Lock()
	hang := ch.b.hangs[op]
	done := ch.conn.done
	ch.b.mu.Unlock()

	if !hang {
		return false
	}
	<-done
	return true
}

// beginLocked проверяет состояние канала и подготовленные отказы.
func (ch *Channel) beginLocked(op string) error {
	if ch.closed {
		return amqp.ErrClosed
	}

	err := ch.b.takeFailureLocked(op)
	if err == nil {
		return nil
	}
	if amqpErr, ok := err.(*amqp.Error); ok {
		ch.shutdownLocked(amqpErr)
	}
	return err
}

// failLocked закрывает канал с ошибкой сервера.
func (ch *Channel) failLocked(code int, reason string) error {
	err := &amqp.Error{Code: code, Reason: reason, Server: true}
	ch.shutdownLocked(err)
	return err
}

// shutdownLocked закрывает канал: возвращает неподтверждённые сообщения,
// закрывает подписки и уведомляет получателей.
func (ch *Channel) shutdownLocked(err *amqp.Error) {
	if ch.closed {
		return
	}
	ch.closed = true

	tags := make([]uint64, 0, len(ch.unacked))
	for tag := range ch.unacked {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	slices.Reverse(tags)
	for _, tag := range tags {
		u := ch.unacked[tag]
		if q, ok := ch.b.queues[u.queue]; ok {
			u.msg.redelivered = true
			q.ready = append([]message{u.msg}, q.ready...)
		}
	}
	clear(ch.unacked)

	ch.b.removeConsumersLocked(ch)
	notifyLocked(ch.notify, err)
	ch.notify = nil
}

func (ch *Channel) hasCapacityLocked() bool {
	if ch.closed {
		return false
	}
	return ch.prefetch <= 0 || len(ch.unacked) < ch.prefetch
}

func (ch *Channel) deliverLocked(c *consumer, q *queue, m message) {
	ch.nextTag++
	tag := ch.nextTag
	ch.unacked[tag] = &unacked{queue: q.name, msg: m}

	pub := m.pub
	d := amqp.Delivery{
		Headers:         pub.Headers,
		ContentType:     pub.ContentType,
		ContentEncoding: pub.ContentEncoding,
		DeliveryMode:    pub.DeliveryMode,
		Priority:        pub.Priority,
		CorrelationId:   pub.CorrelationId,
		ReplyTo:         pub.ReplyTo,
		MessageId:       pub.MessageId,
		Timestamp:       pub.Timestamp,
		Type:            pub.Type,
		ConsumerTag:     c.tag,
		DeliveryTag:     tag,
		Redelivered:     m.redelivered,
		Exchange:        m.exchange,
		RoutingKey:      m.key,
		Body:            pub.Body,
	}

	select {
	case c.deliveries <- d:
	default:
		// буфер подписчика полон: сообщение остаётся неподтверждённым
		// и вернётся в очередь при закрытии канала
	}
}
