package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler — периодические задачи процесса.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Logger *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		// следующий запуск задачи ждёт завершения предыдущего
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
	}
}

// Add регистрирует задачу name с расписанием spec.
func (s *Scheduler) Add(name, spec string, job func()) error {
	if job == nil {
		return ErrEmptyJob
	}

	schedule, err := ParseSpec(spec)
	if err != nil {
		return err
	}

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.logger.Debug("running scheduled job", "job", name)
		job()
	}))

	s.logger.Debug("scheduled job added", "job", name, "spec", spec)
	return nil
}

// Len возвращает число зарегистрированных задач.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run запускает задачи и блокируется до отмены ctx.
// Перед возвратом дожидается завершения выполняющихся задач.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
