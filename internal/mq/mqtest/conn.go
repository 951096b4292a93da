package mqtest

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/mq"
)

// Conn — соединение с брокером в памяти.
type Conn struct {
	b        *Broker
	closed   bool
	done     chan struct{}
	notify   []chan *amqp.Error
	channels []*Channel
}

var _ mq.Connection = (*Conn)(nil)

// Channel открывает канал.
func (c *Conn) Channel() (mq.Channel, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}
	if err := c.b.takeFailureLocked("channel.open"); err != nil {
		return nil, err
	}

	ch := &Channel{
		b:       c.b,
		conn:    c,
		unacked: make(map[uint64]*unacked),
	}
	c.channels = append(c.channels, ch)
	c.b.logLocked("channel.open")
	return ch, nil
}

// NotifyClose регистрирует получателя ошибки закрытия соединения.
func (c *Conn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.closed {
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

// IsClosed сообщает, закрыто ли соединение.
func (c *Conn) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

// Close закрывает соединение со стороны клиента.
func (c *Conn) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if c.closed {
		return amqp.ErrClosed
	}
	c.b.logLocked("connection.close")
	c.shutdownLocked(nil)
	return nil
}

// shutdownLocked закрывает каналы и уведомляет подписчиков.
// err == nil означает штатное закрытие клиентом.
func (c *Conn) shutdownLocked(err *amqp.Error) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)

	for _, ch := range c.channels {
		ch.shutdownLocked(err)
	}
	notifyLocked(c.notify, err)
	c.notify = nil
}

func notifyLocked(receivers []chan *amqp.Error, err *amqp.Error) {
	for _, r := range receivers {
		if err != nil {
			select {
			case r <- err:
			default:
			}
		}
		close(r)
	}
}
