package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/backoff"
)

// ContentTypeJSON — content type JSON-сообщений.
const ContentTypeJSON = "application/json"

// PublisherConfig — конфигурация Publisher.
type PublisherConfig struct {
	// URL — адрес брокера.
	URL string

	// Queue — имя очереди. Используется как routing key по умолчанию.
	Queue string

	// Exchange — exchange для публикации ("" — default exchange).
	Exchange string

	// RoutingKey — ключ маршрутизации (default: Queue).
	RoutingKey string

	// Priority — приоритет сообщений (0..MaxPriority).
	Priority uint8

	// Declare — объявлять ли топологию при подключении.
	Declare DeclareMode

	// DeadsDisabled — не создавать deads exchange/queue.
	DeadsDisabled bool

	// ReconnectTries — число повторных попыток подключения (-1 — без лимита).
	ReconnectTries int

	// ReconnectDelay — потолок паузы между попытками.
	ReconnectDelay time.Duration

	// DisableResend отключает переподключение и повторную отправку
	// после ошибки соединения во время Send.
	DisableResend bool

	Dialer Dialer
	Logger *slog.Logger
}

// SendOptions — свойства отправляемого сообщения.
type SendOptions struct {
	ContentType     string
	ContentEncoding string
	Headers         amqp.Table
	Type            string
	CorrelationID   string
}

// Publisher — синхронный publisher: одно сообщение, один вызов.
// Соединение переиспользуется между вызовами Send.
type Publisher struct {
	cfg    PublisherConfig
	plan   TopologyPlan
	logger *slog.Logger

	mu   sync.Mutex
	conn Connection
	ch   Channel
}

// NewPublisher создаёт Publisher. Подключение выполняется в Connect или при первом Send.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Queue == "" && cfg.RoutingKey == "" {
		return nil, ErrEmptyQueue
	}
	if cfg.Dialer == nil {
		return nil, ErrNoDialer
	}
	if cfg.Declare == "" {
		cfg.Declare = DeclareNo
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = cfg.Queue
	}
	if cfg.Priority > MaxPriority {
		cfg.Priority = MaxPriority
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		cfg:    cfg,
		plan:   Plan(cfg.Queue, cfg.DeadsDisabled),
		logger: logger,
	}, nil
}

// Connect подключается к брокеру, повторяя попытки по политике backoff.Reconnect.
// Существующее соединение заменяется новым.
// Если попытки исчерпаны, возвращается последняя ошибка.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(ctx)
}

func (p *Publisher) connectLocked(ctx context.Context) error {
	policy := backoff.NewReconnect(p.cfg.ReconnectTries, p.cfg.ReconnectDelay)

	for {
		err := p.connectOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay, ok := policy.Next()
		if !ok {
			return err
		}

		p.logger.Debug("connection failed, trying again",
			"queue", p.cfg.Queue,
			"error", err,
			"delay", delay,
			"tries_left", policy.Remaining(),
		)

		if err := backoff.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// connectOnce выполняет одну попытку: dial, канал, объявление топологии.
func (p *Publisher) connectOnce(ctx context.Context) error {
	p.closeLocked()

	conn, err := p.cfg.Dialer.Dial(ctx, p.cfg.URL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if p.cfg.Declare.Declares() {
		if err := DeclareTopology(ch, p.plan); err != nil {
			conn.Close()
			return err
		}
	}

	p.conn = conn
	p.ch = ch
	return nil
}

// Send публикует сообщение. Без соединения сначала подключается.
//
// При ошибке соединения или канала (и если повторная отправка не отключена)
// Publisher переподключается и отправляет сообщение ещё раз.
func (p *Publisher) Send(ctx context.Context, body []byte, opts SendOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connectLocked(ctx); err != nil {
			return err
		}
	}

	err := p.publishLocked(ctx, body, opts)
	if err == nil {
		return nil
	}

	if p.cfg.DisableResend || !isConnectionError(err) {
		return err
	}

	p.logger.Debug("publish failed, reconnecting to re-send", "error", err)

	if err := p.connectLocked(ctx); err != nil {
		return err
	}
	return p.publishLocked(ctx, body, opts)
}

// SendJSON кодирует v в JSON и публикует с content type application/json.
func (p *Publisher) SendJSON(ctx context.Context, v any, headers map[string]any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.Send(ctx, body, SendOptions{
		ContentType: ContentTypeJSON,
		Headers:     amqp.Table(headers),
	})
}

func (p *Publisher) publishLocked(ctx context.Context, body []byte, opts SendOptions) error {
	if p.ch == nil {
		return ErrNotConnected
	}

	msg := amqp.Publishing{
		ContentType:     opts.ContentType,
		ContentEncoding: opts.ContentEncoding,
		Headers:         opts.Headers,
		DeliveryMode:    amqp.Persistent, // сообщение переживёт рестарт брокера
		Priority:        p.cfg.Priority,
		MessageId:       uuid.NewString(),
		CorrelationId:   opts.CorrelationID,
		Type:            opts.Type,
		Timestamp:       time.Now(),
		Body:            body,
	}

	err := p.ch.PublishWithContext(ctx,
		p.cfg.Exchange,   // exchange
		p.cfg.RoutingKey, // routing key
		false,            // mandatory
		false,            // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.cfg.Exchange, p.cfg.RoutingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", p.cfg.Exchange,
		"routing_key", p.cfg.RoutingKey,
		"message_id", msg.MessageId,
		"content_type", msg.ContentType,
	)
	return nil
}

// Close закрывает соединение, игнорируя ошибки.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.conn != nil && !p.conn.IsClosed() {
		p.conn.Close()
	}
	p.conn = nil
	p.ch = nil
}

// isConnectionError отличает ошибки соединения/канала от прочих.
func isConnectionError(err error) bool {
	if errors.Is(err, ErrNotConnected) || errors.Is(err, amqp.ErrClosed) {
		return true
	}
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr)
}
