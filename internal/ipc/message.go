package ipc

import (
	"fmt"
	"time"
)

// Message — значение, которое может пройти через очередь Pair.
// Реализуется только типами этого пакета.
type Message interface {
	isMessage()
}

// Properties — метаданные доставленного сообщения.
type Properties struct {
	ContentType     string
	ContentEncoding string
	Headers         map[string]any
	Priority        uint8
	Type            string
	MessageID       string
	CorrelationID   string
	Timestamp       time.Time
	Redelivered     bool
}

// Delivery — сообщение, полученное agent'ом от брокера.
// Tag используется для ack/nack именно этой доставки.
type Delivery struct {
	Tag        uint64
	Properties Properties
	Body       []byte
}

// Outcome — результат обработки одной Delivery.
//
// Requeue учитывается только при Ack == false.
type Outcome struct {
	Tag      uint64
	Ack      bool
	Requeue  bool
	Duration time.Duration
}

// FaultKind — категория AgentFault.
type FaultKind string

// Категории ошибок agent'а.
const (
	FaultConnectionOpen   FaultKind = "connection_open"
	FaultConnectionClosed FaultKind = "connection_closed"
	FaultChannelOpen      FaultKind = "channel_open"
	FaultChannelClosed    FaultKind = "channel_closed"
	FaultTopology         FaultKind = "topology"
	FaultQoS              FaultKind = "qos"
	FaultConsume          FaultKind = "consume"
	FaultShutdown         FaultKind = "shutdown"
)

// AgentFault — ошибка agent'а или команда на отключение.
//
// Code — код ответа брокера, если он известен. Коды 0 и 200 означают
// штатное закрытие.
type AgentFault struct {
	Kind    FaultKind
	Code    *int
	Message string
}

// Shutdown возвращает сигнал штатного отключения, который worker отправляет agent'у.
func Shutdown() AgentFault {
	return AgentFault{Kind: FaultShutdown, Message: "disconnect requested"}
}

// Code возвращает указатель на код ответа.
func Code(c int) *int {
	return &c
}

// Clean сообщает, что fault описывает ожидаемое закрытие (код 0 или 200).
func (f AgentFault) Clean() bool {
	return f.Code != nil && (*f.Code == 0 || *f.Code == 200)
}

// IsShutdown проверяет, является ли fault сигналом отключения.
func (f AgentFault) IsShutdown() bool {
	return f.Kind == FaultShutdown
}

func (f AgentFault) Error() string {
	if f.Code != nil {
		return fmt.Sprintf("%s: %s (code %d)", f.Kind, f.Message, *f.Code)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (Delivery) isMessage()   {}
func (Outcome) isMessage()    {}
func (AgentFault) isMessage() {}
