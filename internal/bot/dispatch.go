package bot

import (
	"context"
	"sync"
)

// dispatcher — очередь событий на каждого пользователя. Горутина пользователя
// живёт, пока в его очереди есть события.
type dispatcher[T any] struct {
	handle func(context.Context, T)

	mu     sync.Mutex
	queues map[int64][]T
	wg     sync.WaitGroup
}

func newDispatcher[T any](handle func(context.Context, T)) *dispatcher[T] {
	return &dispatcher[T]{handle: handle, queues: map[int64][]T{}}
}

// Submit ставит событие в очередь пользователя key.
func (d *dispatcher[T]) Submit(ctx context.Context, key int64, ev T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, active := d.queues[key]
	d.queues[key] = append(q, ev)
	if !active {
		d.wg.Add(1)
		go d.drain(ctx, key)
	}
}

func (d *dispatcher[T]) drain(ctx context.Context, key int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		ev := q[0]
		var zero T
		q[0] = zero
		d.queues[key] = q[1:]
		d.mu.Unlock()

		d.handle(ctx, ev)
	}
}

// Wait ждёт, пока разберутся все очереди.
func (d *dispatcher[T]) Wait() { d.wg.Wait() }

// active — число пользователей с непустой очередью.
func (d *dispatcher[T]) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
