package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	valid := []string{"*/5 * * * *", "0 3 * * 1", "@every 30s", "@hourly"}
	for _, spec := range valid {
		assert.NoError(t, ValidateSpec(spec), spec)
	}

	invalid := []string{"", "* * *", "@every nonsense", "61 * * * *"}
	for _, spec := range invalid {
		assert.ErrorIs(t, ValidateSpec(spec), ErrInvalidSpec, spec)
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2024, 5, 1, 10, 7, 0, 0, time.UTC)

	next, err := NextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC), next)

	next, err = NextRun("@every 30s", from)
	require.NoError(t, err)
	assert.Equal(t, from.Add(30*time.Second), next)
}

func TestScheduler_Add(t *testing.T) {
	s := New(Config{})

	assert.ErrorIs(t, s.Add("nil", "@every 1s", nil), ErrEmptyJob)
	assert.ErrorIs(t, s.Add("bad", "never", func() {}), ErrInvalidSpec)
	require.NoError(t, s.Add("ok", "@every 1s", func() {}))
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_Run(t *testing.T) {
	s := New(Config{})

	var calls atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func() { calls.Add(1) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
