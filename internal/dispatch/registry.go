package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Conveyor/internal/ipc"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Method — вызываемый метод. Ошибка означает nack.
type Method func(ctx context.Context, args []any, kwargs map[string]any) error

// Registry — реестр методов по имени.
//
// Потокобезопасен.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]Method),
	}
}

// Register регистрирует метод.
// Пустое имя, nil-метод и повторная регистрация — ошибка.
func (r *Registry) Register(name string, m Method) error {
	if name == "" {
		return ErrEmptyName
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrNilMethod, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.methods[name] = m
	return nil
}

// MustRegister как Register, но паникует при ошибке.
func (r *Registry) MustRegister(name string, m Method) {
	if err := r.Register(name, m); err != nil {
		panic(err)
	}
}

// Get возвращает метод по имени.
// Возвращает ErrUnknownMethod, если метод не найден.
func (r *Registry) Get(name string) (Method, error) {
	r.mu.RLock()
	m, exists := r.methods[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w %q (known methods are: %v)", ErrUnknownMethod, name, r.Names())
	}
	return m, nil
}

// Names возвращает отсортированный список имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество методов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.methods)
}

// Handle разбирает конверт и вызывает метод.
// Сигнатура совпадает с worker.Handler.
func (r *Registry) Handle(ctx context.Context, body []byte, props ipc.Properties) error {
	env, err := Decode(body, props)
	if err != nil {
		return err
	}

	m, err := r.Get(env.Method)
	if err != nil {
		return err
	}

	telemetry.FromContext(ctx).Debug("calling method", "method", env.Method, "args", len(env.Args), "kwargs", len(env.Kwargs))

	if err := m(ctx, env.Args, env.Kwargs); err != nil {
		return fmt.Errorf("method %s: %w", env.Method, err)
	}
	return nil
}
