package dispatch

import (
	"context"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Встроенные методы.
const (
	MethodPing = "ping"
	MethodLog  = "log"
)

// RegisterBuiltins регистрирует ping и log.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register(MethodPing, Ping); err != nil {
		return err
	}
	return r.Register(MethodLog, Log)
}

// Ping ничего не делает.
func Ping(context.Context, []any, map[string]any) error {
	return nil
}

// Log пишет аргументы в лог.
func Log(ctx context.Context, args []any, kwargs map[string]any) error {
	telemetry.FromContext(ctx).Info("log method called", "args", args, "kwargs", kwargs)
	return nil
}
