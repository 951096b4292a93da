package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Аргументы очередей.
const (
	ArgMaxPriority          = "x-max-priority"
	ArgDeadLetterExchange   = "x-dead-letter-exchange"
	ArgDeadLetterRoutingKey = "x-dead-letter-routing-key"

	// MaxPriority — потолок приоритета для всех объявляемых очередей.
	MaxPriority = 3

	// DeadSuffix заменяет последний сегмент имени очереди в имени deads.
	DeadSuffix = "deads"
)

// DeclareMode — режим объявления очередей.
type DeclareMode string

// Режимы объявления.
const (
	// DeclareNo — очередь уже существует, только подписываемся.
	DeclareNo DeclareMode = "no"

	// DeclareYes — объявляем топологию и начинаем потребление.
	DeclareYes DeclareMode = "yes"

	// DeclareOnly — объявляем топологию и останавливаемся без потребления.
	DeclareOnly DeclareMode = "only"
)

// ParseDeclareMode разбирает режим объявления. Пустая строка — DeclareNo.
func ParseDeclareMode(s string) (DeclareMode, error) {
	switch DeclareMode(s) {
	case "", DeclareNo:
		return DeclareNo, nil
	case DeclareYes:
		return DeclareYes, nil
	case DeclareOnly:
		return DeclareOnly, nil
	default:
		return "", fmt.Errorf("%w: %q (expected yes, no or only)", ErrInvalidDeclareMode, s)
	}
}

// Declares сообщает, нужно ли объявлять топологию.
func (m DeclareMode) Declares() bool {
	return m == DeclareYes || m == DeclareOnly
}

// Consumes сообщает, нужно ли после объявления начинать потребление.
func (m DeclareMode) Consumes() bool {
	return m != DeclareOnly
}

// String реализует pflag.Value.
func (m DeclareMode) String() string {
	return string(m)
}

// TopologyPlan — план объявления очередей для одной основной очереди.
//
// При включённых deads одно имя служит и exchange'ем, и очередью,
// и ключом маршрутизации.
type TopologyPlan struct {
	MainQueue     string
	DeadQueue     string
	DeadExchange  string
	QueueArgs     amqp.Table
	DeadQueueArgs amqp.Table
}

// Plan вычисляет план топологии для очереди queue.
func Plan(queue string, deadsDisabled bool) TopologyPlan {
	plan := TopologyPlan{
		MainQueue: queue,
		QueueArgs: amqp.Table{ArgMaxPriority: int32(MaxPriority)},
	}

	if deadsDisabled {
		return plan
	}

	dead := DeadName(queue)
	plan.DeadQueue = dead
	plan.DeadExchange = dead
	plan.DeadQueueArgs = amqp.Table{ArgMaxPriority: int32(MaxPriority)}
	plan.QueueArgs[ArgDeadLetterExchange] = dead
	plan.QueueArgs[ArgDeadLetterRoutingKey] = dead

	return plan
}

// DeadName возвращает имя deads-очереди: всё после последней точки
// заменяется на ".deads" ("orders.input" → "orders.deads", "orders" → "orders.deads").
func DeadName(queue string) string {
	base := queue
	if i := strings.LastIndex(queue, "."); i >= 0 {
		base = queue[:i]
	}
	return base + "." + DeadSuffix
}

// DeadsEnabled сообщает, включена ли маршрутизация отвергнутых сообщений.
func (p TopologyPlan) DeadsEnabled() bool {
	return p.DeadQueue != ""
}

// String возвращает описание топологии для логирования.
func (p TopologyPlan) String() string {
	if !p.DeadsEnabled() {
		return fmt.Sprintf("%s [%s: %d]", p.MainQueue, ArgMaxPriority, MaxPriority)
	}
	return fmt.Sprintf("%s (direct) -> %s [routing: %s]; %s [%s: %d, %s: %s]",
		p.DeadExchange, p.DeadQueue, p.DeadQueue,
		p.MainQueue, ArgMaxPriority, MaxPriority, ArgDeadLetterExchange, p.DeadExchange)
}

// DeclareDeadExchange объявляет deads exchange.
func DeclareDeadExchange(ch Channel, p TopologyPlan) error {
	err := ch.ExchangeDeclare(
		p.DeadExchange,      // name
		amqp.ExchangeDirect, // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.DeadExchange, err)
	}
	return nil
}

// DeclareDeadQueue объявляет deads очередь.
func DeclareDeadQueue(ch Channel, p TopologyPlan) error {
	_, err := ch.QueueDeclare(
		p.DeadQueue,     // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		p.DeadQueueArgs, // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", p.DeadQueue, err)
	}
	return nil
}

// BindDeadQueue привязывает deads очередь к deads exchange.
func BindDeadQueue(ch Channel, p TopologyPlan) error {
	err := ch.QueueBind(
		p.DeadQueue,    // queue name
		p.DeadQueue,    // routing key
		p.DeadExchange, // exchange
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", p.DeadQueue, p.DeadExchange, err)
	}
	return nil
}

// DeclareMainQueue объявляет основную очередь.
// При включённых deads exchange должен уже существовать.
func DeclareMainQueue(ch Channel, p TopologyPlan) error {
	_, err := ch.QueueDeclare(
		p.MainQueue,
		true,
		false,
		false,
		false,
		p.QueueArgs,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", p.MainQueue, err)
	}
	return nil
}

// DeclareTopology синхронно объявляет всю топологию в нужном порядке:
// deads exchange → deads queue → binding → основная очередь.
func DeclareTopology(ch Channel, p TopologyPlan) error {
	if p.DeadsEnabled() {
		if err := DeclareDeadExchange(ch, p); err != nil {
			return err
		}
		if err := DeclareDeadQueue(ch, p); err != nil {
			return err
		}
		if err := BindDeadQueue(ch, p); err != nil {
			return err
		}
	}

	return DeclareMainQueue(ch, p)
}
