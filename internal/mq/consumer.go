package mq

import (
	"fmt"
	"maps"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/ipc"
)

// NewConsumerTag генерирует уникальный consumer tag.
func NewConsumerTag(prefix string) string {
	if prefix == "" {
		prefix = "conveyor"
	}
	return prefix + "-" + uuid.NewString()
}

// Subscribe начинает потребление из очереди с ручным подтверждением.
func Subscribe(ch Channel, queue, consumerTag string) (<-chan amqp.Delivery, error) {
	deliveries, err := ch.Consume(
		queue,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack (ack вручную по Outcome)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}

// NewDelivery преобразует доставку amqp091 в ipc.Delivery.
// Заголовки и тело копируются: ipc.Delivery не делит память с буферами клиента.
func NewDelivery(d amqp.Delivery) ipc.Delivery {
	var headers map[string]any
	if len(d.Headers) > 0 {
		headers = maps.Clone(map[string]any(d.Headers))
	}

	body := make([]byte, len(d.Body))
	copy(body, d.Body)

	return ipc.Delivery{
		Tag: d.DeliveryTag,
		Properties: ipc.Properties{
			ContentType:     d.ContentType,
			ContentEncoding: d.ContentEncoding,
			Headers:         headers,
			Priority:        d.Priority,
			Type:            d.Type,
			MessageID:       d.MessageId,
			CorrelationID:   d.CorrelationId,
			Timestamp:       d.Timestamp,
			Redelivered:     d.Redelivered,
		},
		Body: body,
	}
}

// Settle применяет Outcome к каналу: ack или nack с флагом requeue.
func Settle(ch Channel, o ipc.Outcome) error {
	if ch == nil {
		return ErrNotConnected
	}

	if o.Ack {
		if err := ch.Ack(o.Tag, false); err != nil {
			return fmt.Errorf("ack %d: %w", o.Tag, err)
		}
		return nil
	}

	if err := ch.Nack(o.Tag, false, o.Requeue); err != nil {
		return fmt.Errorf("nack %d: %w", o.Tag, err)
	}
	return nil
}
