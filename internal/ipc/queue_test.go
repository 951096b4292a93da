package ipc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, Delivery{Tag: 1}))
	require.NoError(t, q.Put(ctx, Outcome{Tag: 1, Ack: true}))
	require.NoError(t, q.Put(ctx, Shutdown()))
	assert.Equal(t, 3, q.Len())

	m, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, Delivery{Tag: 1}, m)

	m, ok = q.TryGet()
	require.True(t, ok)
	assert.Equal(t, Outcome{Tag: 1, Ack: true}, m)

	m, ok = q.TryGet()
	require.True(t, ok)
	assert.True(t, m.(AgentFault).IsShutdown())

	_, ok = q.TryGet()
	assert.False(t, ok)
	assert.True(t, q.Empty())
}

func TestQueue_PutBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Put(context.Background(), Delivery{Tag: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Put(ctx, Delivery{Tag: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_PutNil(t *testing.T) {
	q := NewQueue(1)
	assert.ErrorIs(t, q.Put(context.Background(), nil), ErrNilMessage)
}

func TestQueue_CloseIdempotent(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Put(context.Background(), Delivery{Tag: 7}))

	q.Close()
	q.Close()

	// Оставшиеся сообщения всё ещё можно забрать
	m, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, uint64(7), m.(Delivery).Tag)

	_, ok = q.TryGet()
	assert.False(t, ok)

	assert.ErrorIs(t, q.Put(context.Background(), Delivery{Tag: 8}), ErrQueueClosed)
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue(8)
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Put(context.Background(), Delivery{Tag: uint64(i)}))
	}

	var tags []uint64
	n := q.Drain(func(m Message) {
		tags = append(tags, m.(Delivery).Tag)
	})

	assert.Equal(t, 5, n)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, tags)
	assert.Zero(t, q.Drain(nil))
}

func TestAgentFault_Clean(t *testing.T) {
	tests := []struct {
		name  string
		fault AgentFault
		clean bool
	}{
		{"code 0", AgentFault{Kind: FaultConnectionClosed, Code: Code(0)}, true},
		{"code 200", AgentFault{Kind: FaultChannelClosed, Code: Code(200)}, true},
		{"code 406", AgentFault{Kind: FaultChannelClosed, Code: Code(406)}, false},
		{"no code", AgentFault{Kind: FaultConnectionOpen}, false},
		{"shutdown", Shutdown(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.clean, tt.fault.Clean())
		})
	}
}

func TestAgentFault_Error(t *testing.T) {
	f := AgentFault{Kind: FaultChannelClosed, Code: Code(406), Message: "PRECONDITION_FAILED"}
	assert.Equal(t, "channel_closed: PRECONDITION_FAILED (code 406)", f.Error())

	f = AgentFault{Kind: FaultConnectionOpen, Message: "dial tcp: refused"}
	assert.Equal(t, "connection_open: dial tcp: refused", f.Error())
}

func TestQueue_TryPut(t *testing.T) {
	q := NewQueue(1)

	ok, err := q.TryPut(Delivery{Tag: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.TryPut(Delivery{Tag: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	q.Close()
	_, err = q.TryPut(Delivery{Tag: 3})
	assert.ErrorIs(t, err, ErrQueueClosed)
}
