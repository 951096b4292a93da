package dispatch

import "errors"

// Ошибки разбора и вызова.
var (
	// ErrContentType — content type сообщения не application/json.
	ErrContentType = errors.New("invalid message: content-type should be application/json")

	// ErrMalformed — тело не является конвертом [method, [args], {kwargs}].
	ErrMalformed = errors.New(`invalid message format: expected ["method", [arguments], {parameters}]`)

	// ErrUnknownMethod — метод не зарегистрирован.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrEmptyName — регистрация метода без имени.
	ErrEmptyName = errors.New("method name is empty")

	// ErrNilMethod — регистрация nil-метода.
	ErrNilMethod = errors.New("method is nil")

	// ErrDuplicate — метод с таким именем уже зарегистрирован.
	ErrDuplicate = errors.New("method already registered")

	// ErrNoMethods — в реестре нет ни одного метода.
	ErrNoMethods = errors.New("no methods registered")
)
