// Package watch содержит два примитива реактивных потоков: ячейку состояния
// Value с повтором последнего значения и событийный канал Broadcast без
// повтора. Это разные абстракции, их нельзя смешивать: состояние всегда
// доигрывается новому подписчику, событие доставляется только текущим.
package watch

import "sync"

// Value — ячейка состояния с повтором последнего значения. Новый подписчик
// немедленно получает текущее значение, если оно задано. Медленный подписчик
// не блокирует запись: устаревшее значение вытесняется свежим.
type Value[T any] struct {
	mu     sync.Mutex
	val    T
	set    bool
	closed bool
	next   int
	subs   map[int]chan T
}

// NewValue создаёт пустую ячейку.
func NewValue[T any]() *Value[T] {
	return &Value[T]{subs: make(map[int]chan T)}
}

// Set записывает значение и уведомляет подписчиков.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.val = val
	v.set = true
	for _, ch := range v.subs {
		send(ch, val)
	}
}

// Get возвращает текущее значение и признак того, что оно было задано.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.set
}

// Subscribe регистрирует подписчика. Текущее значение доигрывается сразу.
// Возвращённую функцию отмены нужно вызвать при завершении наблюдателя.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ch := make(chan T, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	if v.set {
		ch <- v.val
	}
	id := v.next
	v.next++
	v.subs[id] = ch
	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if sub, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(sub)
		}
	}
}

// Close закрывает ячейку и каналы всех подписчиков.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

// send кладёт значение в канал с буфером 1, вытесняя устаревшее.
func send[T any](ch chan T, val T) {
	for {
		select {
		case ch <- val:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
