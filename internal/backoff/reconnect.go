package backoff

import "time"

// Unlimited — неограниченное число попыток подключения.
const Unlimited = -1

// Reconnect — задержки между попытками подключения.
//
// Первая повторная попытка идёт без паузы, далее 1s, 2s, 4s ...
// не больше max. Экземпляр рассчитан на один цикл подключения.
type Reconnect struct {
	tries int
	max   time.Duration
	delay time.Duration
}

// NewReconnect создаёт политику: tries — число повторных попыток
// (0 — без повторов, Unlimited — без лимита), max — потолок паузы.
func NewReconnect(tries int, max time.Duration) *Reconnect {
	if max < 0 {
		max = 0
	}
	return &Reconnect{tries: tries, max: max}
}

// Next возвращает паузу перед следующей попыткой.
// false означает, что попытки исчерпаны.
func (r *Reconnect) Next() (time.Duration, bool) {
	if r.tries == 0 {
		return 0, false
	}
	if r.tries > 0 {
		r.tries--
	}

	if r.delay >= r.max {
		r.delay = r.max
	}
	d := r.delay

	if r.delay == 0 {
		r.delay = time.Second
	} else {
		r.delay *= 2
	}

	return d, true
}

// Remaining возвращает число оставшихся попыток (Unlimited — без лимита).
func (r *Reconnect) Remaining() int {
	return r.tries
}
