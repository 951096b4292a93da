package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema — таблица журнала. Применяется в Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS conveyor_outcomes (
	id           UUID PRIMARY KEY,
	queue        TEXT NOT NULL,
	delivery_tag BIGINT NOT NULL,
	message_id   TEXT,
	redelivered  BOOLEAN NOT NULL DEFAULT FALSE,
	outcome      TEXT NOT NULL,
	duration_ms  DOUBLE PRECISION NOT NULL,
	error        TEXT,
	recorded_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conveyor_outcomes_queue_recorded_at
	ON conveyor_outcomes (queue, recorded_at);
`

const insertOutcome = `
	INSERT INTO conveyor_outcomes
		(id, queue, delivery_tag, message_id, redelivered, outcome, duration_ms, error, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// execer — часть pgxpool.Pool, нужная журналу.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink пишет записи в PostgreSQL.
type PostgresSink struct {
	db    execer
	close func()
}

// NewPool создаёт пул соединений и проверяет доступность базы.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// OpenPostgres подключается к базе, создаёт таблицу и возвращает Sink.
// Close закрывает пул.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresSink, error) {
	pool, err := NewPool(ctx, dsn, maxConns)
	if err != nil {
		return nil, err
	}

	s := &PostgresSink{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSink создаёт Sink поверх готового пула. Close пул не закрывает.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: pool}
}

// Migrate создаёт таблицу журнала, если её нет.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Record вставляет запись.
func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx, insertOutcome,
		e.ID,
		e.Queue,
		int64(e.DeliveryTag),
		nullString(e.MessageID),
		e.Redelivered,
		e.Outcome(),
		float64(e.Duration)/float64(time.Millisecond),
		nullString(e.Error),
		e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Close закрывает пул, если он был открыт OpenPostgres.
func (s *PostgresSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
