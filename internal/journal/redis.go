package journal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamMaxLen — приблизительный предел длины stream'а очереди.
const DefaultStreamMaxLen = 10000

// Поля hash-счётчиков очереди.
const (
	FieldTotal = "total"
)

// RedisSink пишет счётчики результатов в hash "conveyor:stats:<queue>"
// и записи в stream "conveyor:outcomes:<queue>" ограниченной длины.
type RedisSink struct {
	client *redis.Client
	maxLen int64
}

// OpenRedis подключается к redis по URL вида redis://host:port/db.
func OpenRedis(ctx context.Context, url string, maxLen int64) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisSink(client, maxLen), nil
}

// NewRedisSink создаёт Sink поверх клиента. maxLen <= 0 — DefaultStreamMaxLen.
func NewRedisSink(client *redis.Client, maxLen int64) *RedisSink {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisSink{client: client, maxLen: maxLen}
}

// StatsKey — ключ hash-счётчиков очереди.
func StatsKey(queue string) string {
	return "conveyor:stats:" + queue
}

// StreamKey — ключ stream'а записей очереди.
func StreamKey(queue string) string {
	return "conveyor:outcomes:" + queue
}

// Record атомарно увеличивает счётчики и добавляет запись в stream.
func (s *RedisSink) Record(ctx context.Context, e Entry) error {
	pipe := s.client.TxPipeline()

	pipe.HIncrBy(ctx, StatsKey(e.Queue), FieldTotal, 1)
	pipe.HIncrBy(ctx, StatsKey(e.Queue), e.Outcome(), 1)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(e.Queue),
		MaxLen: s.maxLen,
		Approx: true,
		Values: streamValues(e),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

var _ Totals = (*RedisSink)(nil)

// Stats возвращает счётчики очереди.
func (s *RedisSink) Stats(ctx context.Context, queue string) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, StatsKey(queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats field %s: %w", k, err)
		}
		stats[k] = n
	}
	return stats, nil
}

// Close закрывает клиента.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func streamValues(e Entry) map[string]any {
	return map[string]any{
		"id":           e.ID.String(),
		"delivery_tag": strconv.FormatUint(e.DeliveryTag, 10),
		"message_id":   e.MessageID,
		"redelivered":  strconv.FormatBool(e.Redelivered),
		"outcome":      e.Outcome(),
		"duration_ms":  strconv.FormatInt(e.Duration.Milliseconds(), 10),
		"error":        e.Error,
		"recorded_at":  e.RecordedAt.Format(time.RFC3339Nano),
	}
}
