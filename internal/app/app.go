package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/agent"
	"github.com/shaiso/Conveyor/internal/backoff"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Коды завершения процесса.
const (
	ExitOK            = 0
	ExitRunFailed     = 1
	ExitConnectFailed = 2

	// exitRestart — штатное завершение, после которого нужно переподключиться.
	exitRestart = 3
)

// Runner — то, что умеет App. Реализуется *worker.Worker.
type Runner interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Disconnect()
	IsStopped() bool
}

var _ Runner = (*worker.Worker)(nil)

// Config — конфигурация App.
type Config struct {
	// Queue — имя очереди, только для логов.
	Queue string

	// Declare — режим объявления. При DeclareOnly цикл не повторяется.
	Declare mq.DeclareMode

	// Reconnect повторяет цикл после ошибки или обрыва.
	Reconnect bool

	// RestartDelay — пауза перед повтором (default: worker.DefaultTerminateGrace).
	RestartDelay time.Duration

	Logger *slog.Logger
}

// App — цикл приложения.
type App struct {
	runner Runner
	cfg    Config
	logger *slog.Logger
}

// New создаёт App.
func New(runner Runner, cfg Config) *App {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = worker.DefaultTerminateGrace
	}
	if cfg.Declare == "" {
		cfg.Declare = mq.DeclareNo
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &App{
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// ConnectAndRun выполняет один цикл и возвращает его код.
func (a *App) ConnectAndRun(ctx context.Context) int {
	a.logger.Info("connecting", "queue", a.cfg.Queue, "declare", a.cfg.Declare)

	if err := a.runner.Connect(ctx); err != nil {
		a.runner.Disconnect()
		if ctx.Err() != nil {
			return ExitOK
		}
		a.logger.Error("connect failed", "error", err)
		return exitCode(err, ExitConnectFailed)
	}

	err := a.runner.Run(ctx)
	a.runner.Disconnect()

	if err != nil {
		a.logger.Error("run failed", "error", err)
		return exitCode(err, ExitRunFailed)
	}

	if a.cfg.Declare == mq.DeclareOnly {
		a.logger.Debug("declare only, stopping normally")
		return ExitOK
	}

	if a.cfg.Reconnect && !a.runner.IsStopped() && ctx.Err() == nil {
		a.logger.Debug("connection stopped, reconnect is set")
		return exitRestart
	}

	a.logger.Info("connection stopped normally")
	return ExitOK
}

// Main повторяет ConnectAndRun, пока включён Reconnect и код не нулевой.
// Отмена ctx завершает цикл с кодом 0.
func (a *App) Main(ctx context.Context) int {
	for {
		code := a.ConnectAndRun(ctx)
		a.logger.Debug("connect and run finished", "code", code, "reconnect", a.cfg.Reconnect)

		if ctx.Err() != nil {
			a.logger.Info("exiting", "reason", ctx.Err())
			return ExitOK
		}

		if code == ExitOK || !a.cfg.Reconnect {
			a.logger.Info("exiting", "code", code)
			return code
		}

		if err := backoff.Sleep(ctx, a.cfg.RestartDelay); err != nil {
			a.logger.Info("exiting", "reason", err)
			return ExitOK
		}
		a.logger.Warn("reconnecting", "queue", a.cfg.Queue)
	}
}

// exitCode переводит ошибку в код: сбой открытия соединения или канала
// всегда даёт ExitConnectFailed.
func exitCode(err error, fallback int) int {
	var fe *agent.FaultError
	if errors.As(err, &fe) && fe.ConnectPhase() {
		return ExitConnectFailed
	}
	return fallback
}
