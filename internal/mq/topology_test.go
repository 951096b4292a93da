package mq_test

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/mq/mqtest"
)

func TestDeadName(t *testing.T) {
	tests := []struct {
		queue string
		want  string
	}{
		{"orders.input", "orders.deads"},
		{"orders", "orders.deads"},
		{"a.b.c", "a.b.deads"},
		{"trailing.", "trailing.deads"},
	}

	for _, tt := range tests {
		t.Run(tt.queue, func(t *testing.T) {
			assert.Equal(t, tt.want, mq.DeadName(tt.queue))
		})
	}
}

func TestPlan(t *testing.T) {
	plan := mq.Plan("orders.input", false)

	assert.True(t, plan.DeadsEnabled())
	assert.Equal(t, "orders.deads", plan.DeadQueue)
	assert.Equal(t, "orders.deads", plan.DeadExchange)
	assert.Equal(t, amqp.Table{
		"x-max-priority":            int32(3),
		"x-dead-letter-exchange":    "orders.deads",
		"x-dead-letter-routing-key": "orders.deads",
	}, plan.QueueArgs)
	assert.Equal(t, amqp.Table{"x-max-priority": int32(3)}, plan.DeadQueueArgs)

	// план детерминирован
	assert.Equal(t, plan, mq.Plan("orders.input", false))
}

func TestPlan_DeadsDisabled(t *testing.T) {
	plan := mq.Plan("orders.input", true)

	assert.False(t, plan.DeadsEnabled())
	assert.Empty(t, plan.DeadQueue)
	assert.Empty(t, plan.DeadExchange)
	assert.Equal(t, amqp.Table{"x-max-priority": int32(3)}, plan.QueueArgs)
}

func TestParseDeclareMode(t *testing.T) {
	tests := []struct {
		in      string
		want    mq.DeclareMode
		wantErr bool
	}{
		{"", mq.DeclareNo, false},
		{"no", mq.DeclareNo, false},
		{"yes", mq.DeclareYes, false},
		{"only", mq.DeclareOnly, false},
		{"maybe", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := mq.ParseDeclareMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, mq.ErrInvalidDeclareMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, mq.DeclareNo.Declares())
	assert.True(t, mq.DeclareYes.Consumes())
	assert.False(t, mq.DeclareOnly.Consumes())
}

func TestDeclareTopology_Order(t *testing.T) {
	broker := mqtest.New()
	conn, err := broker.Dial(context.Background(), "amqp://test")
	require.NoError(t, err)
	ch, err := conn.Channel()
	require.NoError(t, err)

	require.NoError(t, mq.DeclareTopology(ch, mq.Plan("orders.input", false)))

	assert.Equal(t, []string{
		"connection.open",
		"channel.open",
		"exchange.declare orders.deads",
		"queue.declare orders.deads",
		"queue.bind orders.deads orders.deads orders.deads",
		"queue.declare orders.input",
	}, broker.Ops())
}

func TestDeclareTopology_Idempotent(t *testing.T) {
	broker := mqtest.New()
	conn, err := broker.Dial(context.Background(), "amqp://test")
	require.NoError(t, err)
	ch, err := conn.Channel()
	require.NoError(t, err)

	plan := mq.Plan("orders.input", false)
	require.NoError(t, mq.DeclareTopology(ch, plan))
	require.NoError(t, mq.DeclareTopology(ch, plan))

	assert.Equal(t, plan.QueueArgs, broker.QueueArgs("orders.input"))
}

func TestDeclareTopology_Conflict(t *testing.T) {
	broker := mqtest.New()
	broker.DeclareQueue("orders.input", amqp.Table{"x-max-priority": int32(10)})

	conn, err := broker.Dial(context.Background(), "amqp://test")
	require.NoError(t, err)
	ch, err := conn.Channel()
	require.NoError(t, err)

	err = mq.DeclareTopology(ch, mq.Plan("orders.input", true))
	require.Error(t, err)

	code, ok := mq.ReplyCode(err)
	require.True(t, ok)
	assert.Equal(t, 406, code)
}
