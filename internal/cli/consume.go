package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/dispatch"
	"github.com/shaiso/Conveyor/internal/journal"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// newConsumeCmd создаёт команду consume.
func newConsumeCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume messages and call registered methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsumer(cmd.Context(), s, s.cfg.AMQP.DeclareMode())
		},
	}

	f := cmd.Flags()
	f.IntVar(&s.flags.Worker.Prefetch, "prefetch-count", s.flags.Worker.Prefetch, "QoS prefetch count")
	f.DurationVar(&s.flags.Worker.MaxSleep, "max-sleep", s.flags.Worker.MaxSleep, "max pause after a failed message when deads are disabled, 0 to disable")
	f.DurationVar(&s.flags.Worker.TerminateGrace, "terminate-grace", s.flags.Worker.TerminateGrace, "how long to wait for a graceful disconnect")
	f.BoolVarP(&s.flags.Worker.Reconnect, "reconnect", "r", false, "reconnect on failure")
	f.StringVar(&s.flags.Worker.StatsEvery, "stats-every", "", `log message counters on a cron schedule, e.g. "@every 1m"`)
	f.StringVar(&s.flags.Metrics.Addr, "metrics-addr", "", "serve /healthz and /metrics on this address")
	f.StringVar(&s.flags.Journal.DSN, "journal-dsn", "", "record outcomes in PostgreSQL")
	f.StringVar(&s.flags.Journal.Redis, "journal-redis", "", "record outcomes in redis")

	return cmd
}

// newDeclareCmd создаёт команду declare: объявить топологию и выйти.
func newDeclareCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "declare",
		Short: "Declare the queue topology and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsumer(cmd.Context(), s, mq.DeclareOnly)
		},
	}
}

// runConsumer запускает цикл приложения и переводит его код в ошибку.
func runConsumer(ctx context.Context, s *settings, declare mq.DeclareMode) error {
	cfg := s.cfg
	logger := s.logger

	url, err := cfg.AMQP.ConnectionURL()
	if err != nil {
		return &ExitError{Code: app.ExitConnectFailed, Err: err}
	}

	registry, err := s.registry()
	if err != nil {
		return err
	}
	// без методов каждое сообщение уйдёт в deads
	if declare.Consumes() && registry.Count() == 0 {
		return &ExitError{Code: app.ExitConnectFailed, Err: dispatch.ErrNoMethods}
	}

	promReg := s.opts.Metrics
	if promReg == nil {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	rec, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return &ExitError{Code: app.ExitConnectFailed, Err: err}
	}
	defer closeJournal()

	w, err := worker.New(worker.Config{
		URL:            url,
		Queue:          cfg.AMQP.Queue,
		DeadsDisabled:  cfg.AMQP.DeadsDisabled,
		Declare:        declare,
		Prefetch:       cfg.Worker.Prefetch,
		MaxSleep:       cfg.Worker.MaxSleep,
		TerminateGrace: cfg.Worker.TerminateGrace,
		Handler:        registry.Handle,
		Hooks:          rec.Hooks(worker.Hooks{}),
		Dialer:         s.opts.Dialer,
		Logger:         logger,
		Metrics:        telemetry.NewMetrics(promReg),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Metrics.Addr != "" {
		srv := newServer(cfg.Metrics.Addr, promReg, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	if cfg.Worker.StatsEvery != "" {
		sched := scheduler.New(scheduler.Config{Logger: logger})
		stats := func() {
			w.LogStats()
			rec.LogTotals()
		}
		if err := sched.Add("stats", cfg.Worker.StatsEvery, stats); err != nil {
			return &ExitError{Code: app.ExitConnectFailed, Err: err}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	logger.Info("starting consumer",
		"url", cfg.AMQP.Redacted(),
		"queue", cfg.AMQP.Queue,
		"declare", declare,
		"methods", registry.Names(),
	)

	a := app.New(w, app.Config{
		Queue:        cfg.AMQP.Queue,
		Declare:      declare,
		Reconnect:    cfg.Worker.Reconnect,
		RestartDelay: cfg.Worker.TerminateGrace,
		Logger:       logger,
	})
	code := a.Main(ctx)

	cancel()
	wg.Wait()
	w.LogStats()

	if code != app.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

// openJournal открывает журнал, если он настроен.
// Без журнала возвращается nil *journal.Recorder.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*journal.Recorder, func(), error) {
	var (
		sink journal.Sink
		err  error
	)

	switch {
	case cfg.Journal.DSN != "":
		sink, err = journal.OpenPostgres(ctx, cfg.Journal.DSN, cfg.Journal.MaxConns)
	case cfg.Journal.Redis != "":
		sink, err = journal.OpenRedis(ctx, cfg.Journal.Redis, cfg.Journal.StreamMaxLen)
	default:
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}

	rec, err := journal.NewRecorder(sink, cfg.AMQP.Queue, cfg.AMQP.DeadsDisabled, logger)
	if err != nil {
		sink.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close journal", "error", err)
		}
	}
	return rec, closeFn, nil
}
