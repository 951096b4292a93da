package agent

import (
	"errors"

	"github.com/shaiso/Conveyor/internal/ipc"
)

// Ошибки agent'а.
var (
	// ErrEmptyConsumerTag — подписка вернула пустой consumer tag.
	ErrEmptyConsumerTag = errors.New("empty consumer tag")

	// ErrConsumerCancelled — брокер отменил подписку.
	ErrConsumerCancelled = errors.New("consumer cancelled by broker")

	// ErrAlreadyStarted — повторный вызов Start.
	ErrAlreadyStarted = errors.New("agent already started")
)

// FaultError — ошибка, которой завершился agent.
type FaultError struct {
	Fault ipc.AgentFault
}

func (e *FaultError) Error() string {
	return "agent fault: " + e.Fault.Error()
}

// ConnectPhase сообщает, что agent не смог открыть соединение или канал.
func (e *FaultError) ConnectPhase() bool {
	switch e.Fault.Kind {
	case ipc.FaultConnectionOpen, ipc.FaultChannelOpen:
		return true
	default:
		return false
	}
}
