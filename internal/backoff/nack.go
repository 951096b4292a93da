package backoff

import "time"

// DefaultMaxSleep — потолок паузы после ошибок обработчика.
const DefaultMaxSleep = 16 * time.Second

// Nack считает подряд идущие ошибки обработки и вычисляет паузу.
type Nack struct {
	max      time.Duration
	failures int
}

// NewNack создаёт политику с потолком max. max <= 0 отключает паузы.
func NewNack(max time.Duration) *Nack {
	return &Nack{max: max}
}

// Fail регистрирует ошибку и возвращает паузу min(2^failures s, max).
func (n *Nack) Fail() time.Duration {
	n.failures++
	return n.Delay()
}

// Delay возвращает паузу для текущего числа ошибок без его изменения.
func (n *Nack) Delay() time.Duration {
	if n.max <= 0 || n.failures == 0 {
		return 0
	}
	// 2^33 s — предел time.Duration
	if n.failures > 32 {
		return n.max
	}
	d := time.Duration(1<<uint(n.failures)) * time.Second
	return min(d, n.max)
}

// Reset обнуляет счётчик после успешной обработки.
func (n *Nack) Reset() {
	n.failures = 0
}

// Failures возвращает число подряд идущих ошибок.
func (n *Nack) Failures() int {
	return n.failures
}
