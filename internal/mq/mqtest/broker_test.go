package mqtest

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/mq"
)

func openChannel(t *testing.T, b *Broker) (mq.Connection, mq.Channel) {
	t.Helper()

	conn, err := b.Dial(context.Background(), "amqp://test")
	require.NoError(t, err)
	ch, err := conn.Channel()
	require.NoError(t, err)
	return conn, ch
}

func TestBroker_RedeclareWithOtherArgs(t *testing.T) {
	b := New()
	_, ch := openChannel(t, b)

	_, err := ch.QueueDeclare("jobs", true, false, false, false, amqp.Table{"x-max-priority": int32(3)})
	require.NoError(t, err)

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	_, err = ch.QueueDeclare("jobs", true, false, false, false, nil)
	code, ok := mq.ReplyCode(err)
	require.True(t, ok)
	assert.Equal(t, 406, code)

	amqpErr, open := <-closed
	require.True(t, open)
	assert.Equal(t, 406, amqpErr.Code)
}

func TestBroker_ConsumeMissingQueue(t *testing.T) {
	b := New()
	_, ch := openChannel(t, b)

	_, err := ch.Consume("missing", "", false, false, false, false, nil)
	code, ok := mq.ReplyCode(err)
	require.True(t, ok)
	assert.Equal(t, 404, code)
}

func TestBroker_NackDeadLetters(t *testing.T) {
	b := New()
	_, ch := openChannel(t, b)

	plan := mq.Plan("orders.input", false)
	require.NoError(t, mq.DeclareTopology(ch, plan))

	b.Enqueue("orders.input", amqp.Publishing{Body: []byte("x")})

	deliveries, err := ch.Consume("orders.input", "c1", false, false, false, false, nil)
	require.NoError(t, err)

	d := <-deliveries
	require.NoError(t, ch.Nack(d.DeliveryTag, false, false))

	assert.Equal(t, 0, b.Ready("orders.input"))
	assert.Equal(t, 1, b.Ready("orders.deads"))
}

func TestBroker_CloseRequeuesUnacked(t *testing.T) {
	b := New()
	_, ch := openChannel(t, b)
	b.DeclareQueue("jobs", nil)
	b.Enqueue("jobs", amqp.Publishing{Body: []byte("a")})
	b.Enqueue("jobs", amqp.Publishing{Body: []byte("b")})

	require.NoError(t, ch.Qos(1, 0, false))
	deliveries, err := ch.Consume("jobs", "c1", false, false, false, false, nil)
	require.NoError(t, err)

	d := <-deliveries
	assert.Equal(t, "a", string(d.Body))
	assert.Equal(t, 1, b.Unacked())
	assert.Equal(t, 1, b.Ready("jobs"))

	require.NoError(t, ch.Close())

	_, open := <-deliveries
	assert.False(t, open)

	msgs := b.Messages("jobs")
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Body))
	assert.Equal(t, "b", string(msgs[1].Body))
}

func TestBroker_DropConnections(t *testing.T) {
	b := New()
	conn, ch := openChannel(t, b)

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	b.DropConnections(320, "CONNECTION_FORCED")

	err := <-connClosed
	require.NotNil(t, err)
	assert.Equal(t, 320, err.Code)
	assert.NotNil(t, <-chClosed)
	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0, b.OpenConnections())
}

func TestBroker_FailDial(t *testing.T) {
	b := New()
	b.FailDial(amqp.ErrClosed)

	_, err := b.Dial(context.Background(), "amqp://test")
	assert.ErrorIs(t, err, amqp.ErrClosed)

	_, err = b.Dial(context.Background(), "amqp://test")
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Dials())
}
