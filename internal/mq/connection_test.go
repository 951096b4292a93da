package mq_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/mq"
)

// silentListener принимает соединения и ничего не отвечает:
// AMQP handshake зависает на ожидании connection.start.
func silentListener(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(io.Discard, conn)
			}()
		}
	}()

	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestAMQPDialer_CancelInterruptsHandshake(t *testing.T) {
	url := silentListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	started := time.Now()
	_, err := mq.AMQPDialer{Timeout: time.Minute}.Dial(ctx, url)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestAMQPDialer_HandshakeTimeout(t *testing.T) {
	url := silentListener(t)

	started := time.Now()
	_, err := mq.AMQPDialer{Timeout: 100 * time.Millisecond}.Dial(context.Background(), url)

	assert.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestAMQPDialer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mq.AMQPDialer{}.Dial(ctx, mq.DefaultURL())
	assert.ErrorIs(t, err, context.Canceled)
}
