package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/ipc"
)

var jsonProps = ipc.Properties{ContentType: "application/json"}

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`["resize", [1, "a"], {"w": 10}]`), jsonProps)
	require.NoError(t, err)

	assert.Equal(t, "resize", env.Method)
	assert.Equal(t, []any{json.Number("1"), "a"}, env.Args)
	assert.Equal(t, map[string]any{"w": json.Number("10")}, env.Kwargs)
}

func TestDecode_Empty(t *testing.T) {
	env, err := Decode([]byte(`["ping", [], {}]`), jsonProps)
	require.NoError(t, err)
	assert.Equal(t, []any{}, env.Args)
	assert.Equal(t, map[string]any{}, env.Kwargs)
}

func TestDecode_ContentType(t *testing.T) {
	for _, ct := range []string{"", "text/plain", "application/json; charset=utf-8"} {
		_, err := Decode([]byte(`["ping", [], {}]`), ipc.Properties{ContentType: ct})
		assert.ErrorIs(t, err, ErrContentType, ct)
	}
}

func TestDecode_Malformed(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"method": "ping"}`,
		`["ping"]`,
		`["ping", [], {}, 1]`,
		`[1, [], {}]`,
		`["ping", {}, {}]`,
		`["ping", [], []]`,
		`["ping", null, {}]`,
		`["ping", [], null]`,
	}

	for _, body := range bodies {
		_, err := Decode([]byte(body), jsonProps)
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestEnvelope_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Envelope{Method: "ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `["ping", [], {}]`, string(b))

	b, err = json.Marshal(Envelope{Method: "log", Args: []any{"x"}, Kwargs: map[string]any{"k": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `["log", ["x"], {"k": 1}]`, string(b))
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("", Ping), ErrEmptyName)
	assert.ErrorIs(t, r.Register("x", nil), ErrNilMethod)
	require.NoError(t, r.Register("x", Ping))
	assert.ErrorIs(t, r.Register("x", Ping), ErrDuplicate)
	assert.Panics(t, func() { r.MustRegister("x", Ping) })

	assert.Equal(t, 1, r.Count())
	_, err := r.Get("x")
	assert.NoError(t, err)
}

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	assert.Equal(t, []string{"log", "ping"}, r.Names())

	assert.NoError(t, r.Handle(context.Background(), []byte(`["ping", [], {}]`), jsonProps))
	assert.NoError(t, r.Handle(context.Background(), []byte(`["log", ["hello"], {"n": 1}]`), jsonProps))
}

func TestRegistry_Handle(t *testing.T) {
	r := NewRegistry()

	var gotArgs []any
	var gotKwargs map[string]any
	r.MustRegister("store", func(_ context.Context, args []any, kwargs map[string]any) error {
		gotArgs, gotKwargs = args, kwargs
		return nil
	})

	errFull := errors.New("disk full")
	r.MustRegister("fail", func(context.Context, []any, map[string]any) error { return errFull })

	require.NoError(t, r.Handle(context.Background(), []byte(`["store", ["k"], {"v": "x"}]`), jsonProps))
	assert.Equal(t, []any{"k"}, gotArgs)
	assert.Equal(t, map[string]any{"v": "x"}, gotKwargs)

	err := r.Handle(context.Background(), []byte(`["fail", [], {}]`), jsonProps)
	assert.ErrorIs(t, err, errFull)

	err = r.Handle(context.Background(), []byte(`["missing", [], {}]`), jsonProps)
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Contains(t, err.Error(), "fail store")

	err = r.Handle(context.Background(), []byte(`["store"]`), jsonProps)
	assert.ErrorIs(t, err, ErrMalformed)
}
