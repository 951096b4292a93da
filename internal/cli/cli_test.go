package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/dispatch"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/mq/mqtest"
)

type harness struct {
	broker *mqtest.Broker
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	opts   Options
}

func newHarness() *harness {
	h := &harness{
		broker: mqtest.New(),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	h.opts = Options{
		Dialer:  h.broker,
		Metrics: prometheus.NewRegistry(),
		Stdin:   strings.NewReader(""),
		Stdout:  h.stdout,
		Stderr:  h.stderr,
	}
	return h
}

func (h *harness) run(ctx context.Context, args ...string) error {
	cmd := NewRootCmd("test", h.opts)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 2, ExitCode(&ExitError{Code: 2}))
	assert.Equal(t, 2, ExitCode(&ExitError{Code: 2, Err: errors.New("bad url")}))
}

func TestPlan(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.run(context.Background(), "plan", "-q", "orders.input"))

	out := h.stdout.String()
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "orders.deads")
	assert.Contains(t, out, "x-dead-letter-exchange=orders.deads")
	assert.Contains(t, out, "x-max-priority=3")
	assert.Zero(t, h.broker.Dials(), "plan does not connect")
}

func TestPlan_JSONDeadsDisabled(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.run(context.Background(), "plan", "--json", "--deads-disabled", "-q", "jobs"))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "jobs", rows[0]["name"])
}

func TestInvalidConfig(t *testing.T) {
	h := newHarness()
	err := h.run(context.Background(), "plan", "--declare", "maybe")
	assert.Equal(t, app.ExitConnectFailed, ExitCode(err))
}

func TestSend(t *testing.T) {
	h := newHarness()
	err := h.run(context.Background(), "send", "-q", "jobs", "--declare", "yes", "--header", "origin=cli", "hello")
	require.NoError(t, err)

	msgs := h.broker.Messages("jobs")
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", string(msgs[0].Body))
	assert.Equal(t, uint8(1), msgs[0].Priority)
	assert.Equal(t, mq.ContentTypeJSON, msgs[0].ContentType)
	assert.Equal(t, "cli", msgs[0].Headers["origin"])
	assert.Contains(t, h.stderr.String(), "Sent 5 bytes to jobs")
}

func TestSend_Stdin(t *testing.T) {
	h := newHarness()
	h.opts.Stdin = strings.NewReader("from stdin")

	err := h.run(context.Background(), "send", "-q", "jobs", "--declare", "yes", "--content-type", "text/plain", "--priority", "3", "-")
	require.NoError(t, err)

	msgs := h.broker.Messages("jobs")
	require.Len(t, msgs, 1)
	assert.Equal(t, "from stdin", string(msgs[0].Body))
	assert.Equal(t, "text/plain", msgs[0].ContentType)
	assert.Equal(t, uint8(3), msgs[0].Priority)
}

func TestSend_ConfigFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
amqp:
  queue: from-file
  declare: "yes"
publisher:
  priority: 2
`), 0o644))

	h := newHarness()
	require.NoError(t, h.run(context.Background(), "send", "--config", path, "a"))
	require.NoError(t, h.run(context.Background(), "send", "--config", path, "-q", "from-flag", "b"))

	msgs := h.broker.Messages("from-file")
	require.Len(t, msgs, 1)
	assert.Equal(t, uint8(2), msgs[0].Priority)

	require.Len(t, h.broker.Messages("from-flag"), 1)
}

func TestCall(t *testing.T) {
	h := newHarness()
	err := h.run(context.Background(), "call", "-q", "jobs", "--declare", "yes", "resize", `["a.png"]`, `{"w": 640}`)
	require.NoError(t, err)

	msgs := h.broker.Messages("jobs")
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `["resize", ["a.png"], {"w": 640}]`, string(msgs[0].Body))
	assert.Equal(t, mq.ContentTypeJSON, msgs[0].ContentType)
}

func TestCall_BadArgs(t *testing.T) {
	h := newHarness()

	err := h.run(context.Background(), "call", "-q", "jobs", "resize", `{"w": 1}`)
	assert.Equal(t, app.ExitRunFailed, ExitCode(err))

	err = h.run(context.Background(), "call", "-q", "jobs", "resize", `[]`, `[1]`)
	assert.Error(t, err)
	assert.Zero(t, h.broker.Dials())
}

func TestDeclare(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.run(context.Background(), "declare", "-q", "orders.input"))

	assert.True(t, h.broker.HasQueue("orders.input"))
	assert.True(t, h.broker.HasQueue("orders.deads"))
	assert.Equal(t, mq.Plan("orders.input", false).QueueArgs, h.broker.QueueArgs("orders.input"))
}

func TestConsume(t *testing.T) {
	h := newHarness()
	h.broker.DeclareQueue("jobs", nil)
	h.broker.Enqueue("jobs", amqp.Publishing{ContentType: mq.ContentTypeJSON, Body: []byte(`["count", [], {}]`)})
	h.broker.Enqueue("jobs", amqp.Publishing{ContentType: mq.ContentTypeJSON, Body: []byte(`["count", [], {}]`)})

	var calls atomic.Int32
	reg := dispatch.NewRegistry()
	reg.MustRegister("count", func(context.Context, []any, map[string]any) error {
		calls.Add(1)
		return nil
	})
	h.opts.Registry = reg

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		for calls.Load() < 2 && ctx.Err() == nil {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	err := h.run(ctx, "consume", "-q", "jobs", "--deads-disabled", "--terminate-grace", "1s", "-vv")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, h.broker.Ready("jobs"))
	assert.Zero(t, h.broker.Unacked())
	assert.Contains(t, h.stderr.String(), "stats: total 2 good 2 bad 0")
}

func TestConsume_ConnectFailure(t *testing.T) {
	h := newHarness()
	h.broker.FailDial(&amqp.Error{Code: 403, Reason: "ACCESS_REFUSED"})

	err := h.run(context.Background(), "consume", "-q", "jobs")
	assert.Equal(t, app.ExitConnectFailed, ExitCode(err))
}

func TestConsume_RunFailure(t *testing.T) {
	h := newHarness()

	// очереди нет, объявление выключено
	err := h.run(context.Background(), "consume", "-q", "jobs")
	assert.Equal(t, app.ExitRunFailed, ExitCode(err))
}

func TestConsume_BadStatsSpec(t *testing.T) {
	h := newHarness()
	err := h.run(context.Background(), "consume", "-q", "jobs", "--stats-every", "sometimes")
	assert.Equal(t, app.ExitConnectFailed, ExitCode(err))
	assert.Zero(t, h.broker.Dials())
}

func TestConsume_EmptyRegistry(t *testing.T) {
	h := newHarness()
	h.opts.Registry = dispatch.NewRegistry()

	err := h.run(context.Background(), "consume", "-q", "jobs")
	assert.Equal(t, app.ExitConnectFailed, ExitCode(err))
	assert.ErrorIs(t, err, dispatch.ErrNoMethods)
	assert.Zero(t, h.broker.Dials())

	// объявлению топологии методы не нужны
	require.NoError(t, h.run(context.Background(), "declare", "-q", "jobs"))
	assert.True(t, h.broker.HasQueue("jobs"))
}

func TestMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "conveyor_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(newMux(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	assert.Contains(t, body.String(), "conveyor_test_total 1")
}

func TestMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	mux.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	srv := httptest.NewServer(chain(recoverPanics(logger), logRequests(logger))(mux))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/panic")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/teapot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), "status=418")
}
