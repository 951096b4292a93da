package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Conveyor/internal/ipc"
	"github.com/shaiso/Conveyor/internal/mq"
)

// Envelope — разобранный конверт вызова.
type Envelope struct {
	Method string
	Args   []any
	Kwargs map[string]any
}

// Decode проверяет content type и разбирает тело сообщения.
// Числа сохраняются как json.Number.
func Decode(body []byte, props ipc.Properties) (Envelope, error) {
	if props.ContentType != mq.ContentTypeJSON {
		return Envelope{}, fmt.Errorf("%w: got %q", ErrContentType, props.ContentType)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil || len(parts) != 3 {
		return Envelope{}, ErrMalformed
	}

	var env Envelope
	if err := json.Unmarshal(parts[0], &env.Method); err != nil {
		return Envelope{}, ErrMalformed
	}
	if !isJSON(parts[1], '[') || !isJSON(parts[2], '{') {
		return Envelope{}, ErrMalformed
	}
	if err := decodeNumbers(parts[1], &env.Args); err != nil {
		return Envelope{}, ErrMalformed
	}
	if err := decodeNumbers(parts[2], &env.Kwargs); err != nil {
		return Envelope{}, ErrMalformed
	}

	if env.Args == nil {
		env.Args = []any{}
	}
	if env.Kwargs == nil {
		env.Kwargs = map[string]any{}
	}
	return env, nil
}

// MarshalJSON кодирует конверт как [method, args, kwargs].
func (e Envelope) MarshalJSON() ([]byte, error) {
	args := e.Args
	if args == nil {
		args = []any{}
	}
	kwargs := e.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return json.Marshal([]any{e.Method, args, kwargs})
}

// isJSON проверяет, что значение начинается с open (массив или объект, не null).
func isJSON(raw json.RawMessage, open byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == open
}

func decodeNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
