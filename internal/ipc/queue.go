package ipc

import (
	"context"
	"sync"
)

// Queue — ограниченная FIFO-очередь сообщений в одну сторону.
//
// Отправитель блокируется, когда очередь заполнена (backpressure).
// Закрывает очередь только её читатель, после того как отправитель завершился.
type Queue struct {
	ch     chan Message
	mu     sync.RWMutex
	closed bool
}

// NewQueue создаёт очередь ёмкостью size (минимум 1).
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Message, size)}
}

// Put кладёт сообщение в очередь, ожидая свободного места.
func (q *Queue) Put(ctx context.Context, m Message) error {
	if m == nil {
		return ErrNilMessage
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPut кладёт сообщение без ожидания.
// Возвращает false, если очередь заполнена.
func (q *Queue) TryPut(m Message) (bool, error) {
	if m == nil {
		return false, ErrNilMessage
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false, ErrQueueClosed
	}

	select {
	case q.ch <- m:
		return true, nil
	default:
		return false, nil
	}
}

// TryGet забирает одно сообщение без ожидания.
func (q *Queue) TryGet() (Message, bool) {
	select {
	case m, ok := <-q.ch:
		if !ok {
			return nil, false
		}
		return m, true
	default:
		return nil, false
	}
}

// Len возвращает количество сообщений в очереди.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Empty проверяет, пуста ли очередь.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Drain забирает все доступные сообщения и передаёт их fn.
// Возвращает количество извлечённых сообщений.
func (q *Queue) Drain(fn func(Message)) int {
	n := 0
	for {
		m, ok := q.TryGet()
		if !ok {
			return n
		}
		n++
		if fn != nil {
			fn(m)
		}
	}
}

// Close закрывает очередь. Повторный вызов безопасен.
// Put, ожидающий места, завершится только по своему контексту,
// поэтому закрывать очередь нужно после остановки отправителя.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Pair — пара очередей между agent'ом и worker'ом.
type Pair struct {
	// ToWorker — agent → worker: Delivery и AgentFault.
	ToWorker *Queue

	// ToAgent — worker → agent: Outcome и сигнал отключения.
	ToAgent *Queue
}

// NewPair создаёт пару очередей. size — ёмкость каждой очереди.
func NewPair(size int) Pair {
	return Pair{
		ToWorker: NewQueue(size),
		ToAgent:  NewQueue(size),
	}
}
