package backoff

import "time"

// Значения по умолчанию для интервала опроса.
const (
	// DefaultPollDelay — начальный интервал и потолок расширения.
	// Чаще проверять пустую очередь смысла нет.
	DefaultPollDelay = 200 * time.Millisecond

	// MinPollDelay — нижняя граница сужения.
	MinPollDelay = time.Millisecond
)

// Adaptive — адаптивный интервал опроса.
type Adaptive struct {
	initial time.Duration
	ceiling time.Duration
	floor   time.Duration
	current time.Duration
}

// NewAdaptive создаёт интервал с начальным значением initial и потолком ceiling.
// Нулевые значения заменяются на DefaultPollDelay.
func NewAdaptive(initial, ceiling time.Duration) *Adaptive {
	if initial <= 0 {
		initial = DefaultPollDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultPollDelay
	}
	return &Adaptive{
		initial: initial,
		ceiling: ceiling,
		floor:   MinPollDelay,
		current: initial,
	}
}

// Current возвращает текущий интервал.
func (a *Adaptive) Current() time.Duration {
	return a.current
}

// Narrow сужает интервал до observed, если оно положительно и меньше текущего.
// Возвращает true, если интервал изменился.
func (a *Adaptive) Narrow(observed time.Duration) bool {
	if observed <= 0 || observed >= a.current {
		return false
	}
	if observed < a.floor {
		observed = a.floor
	}
	if observed == a.current {
		return false
	}
	a.current = observed
	return true
}

// Widen увеличивает интервал в 1.5 раза, если результат не превышает потолок.
// Иначе интервал не меняется.
func (a *Adaptive) Widen() bool {
	next := a.current * 3 / 2
	if next > a.ceiling {
		return false
	}
	a.current = next
	return true
}

// Reset возвращает интервал к начальному значению.
func (a *Adaptive) Reset() {
	a.current = a.initial
}
