package watch

import "sync"

// Broadcast — событийный канал без повтора: публикация доходит только до
// текущих подписчиков и не сохраняется для будущих. Публикация не блокирует
// отправителя: при переполненном буфере подписчика событие отбрасывается.
// Ноль подписчиков — нормальное состояние.
type Broadcast[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]chan T
}

// NewBroadcast создаёт канал.
func NewBroadcast[T any]() *Broadcast[T] {
	return &Broadcast[T]{subs: make(map[int]chan T)}
}

// Publish доставляет событие текущим подписчикам.
func (b *Broadcast[T]) Publish(val T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- val:
		default:
		}
	}
}

// Subscribe регистрирует подписчика с буфером buffer событий.
func (b *Broadcast[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, buffer)
	id := b.next
	b.next++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}
