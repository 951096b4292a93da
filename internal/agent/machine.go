package agent

import "github.com/shaiso/Conveyor/internal/mq"

// State — состояние agent'а.
type State string

const (
	StateIdle                  State = "idle"
	StateConnecting            State = "connecting"
	StateChannelOpening        State = "channel_opening"
	StateDeclaringDeadExchange State = "declaring_dead_exchange"
	StateDeclaringDeadQueue    State = "declaring_dead_queue"
	StateBindingDeadQueue      State = "binding_dead_queue"
	StateDeclaringMainQueue    State = "declaring_main_queue"
	StateSettingQoS            State = "setting_qos"
	StateConsuming             State = "consuming"
	StateDisconnecting         State = "disconnecting"
	StateClosed                State = "closed"
)

// IsTerminal возвращает true для closed.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// Connected сообщает, что соединение и канал уже открыты.
func (s State) Connected() bool {
	switch s {
	case StateDeclaringDeadExchange, StateDeclaringDeadQueue, StateBindingDeadQueue,
		StateDeclaringMainQueue, StateSettingQoS, StateConsuming:
		return true
	default:
		return false
	}
}

// Event — событие, которое двигает Machine.
type Event string

const (
	// EventStart — запуск agent'а.
	EventStart Event = "start"

	// EventDone — действие текущего состояния завершилось успешно.
	EventDone Event = "done"

	// EventFailed — действие текущего состояния завершилось ошибкой.
	EventFailed Event = "failed"

	// EventShutdown — запрошено отключение.
	EventShutdown Event = "shutdown"
)

// Machine — таблица переходов agent'а. Не выполняет никаких действий.
type Machine struct {
	state   State
	declare mq.DeclareMode
	deads   bool
}

// NewMachine создаёт машину в состоянии idle.
func NewMachine(declare mq.DeclareMode, deadsEnabled bool) *Machine {
	if declare == "" {
		declare = mq.DeclareNo
	}
	return &Machine{
		state:   StateIdle,
		declare: declare,
		deads:   deadsEnabled,
	}
}

// State возвращает текущее состояние.
func (m *Machine) State() State {
	return m.state
}

// Step применяет событие и возвращает новое состояние.
// Событие, не имеющее смысла в текущем состоянии, игнорируется.
func (m *Machine) Step(ev Event) State {
	m.state = m.next(ev)
	return m.state
}

func (m *Machine) next(ev Event) State {
	switch m.state {
	case StateClosed:
		return StateClosed
	case StateDisconnecting:
		if ev == EventStart {
			return m.state
		}
		return StateClosed
	case StateIdle:
		switch ev {
		case EventStart:
			return StateConnecting
		case EventFailed, EventShutdown:
			return StateClosed
		}
		return m.state
	}

	switch ev {
	case EventFailed, EventShutdown:
		return StateDisconnecting
	case EventDone:
		return m.afterDone()
	default:
		return m.state
	}
}

func (m *Machine) afterDone() State {
	switch m.state {
	case StateConnecting:
		return StateChannelOpening
	case StateChannelOpening:
		switch {
		case !m.declare.Declares():
			return StateSettingQoS
		case m.deads:
			return StateDeclaringDeadExchange
		default:
			return StateDeclaringMainQueue
		}
	case StateDeclaringDeadExchange:
		return StateDeclaringDeadQueue
	case StateDeclaringDeadQueue:
		return StateBindingDeadQueue
	case StateBindingDeadQueue:
		return StateDeclaringMainQueue
	case StateDeclaringMainQueue:
		if !m.declare.Consumes() {
			return StateDisconnecting
		}
		return StateSettingQoS
	case StateSettingQoS:
		return StateConsuming
	case StateConsuming:
		// подписка закончилась сама
		return StateDisconnecting
	default:
		return m.state
	}
}
