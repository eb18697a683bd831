package notify

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue.
type workerPool[T any] struct {
	queue   chan T
	process func(ctx context.Context, t T) error
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func newWorkerPool[T any](ctx context.Context, n, capacity int, fn func(context.Context, T) error) *workerPool[T] {
	if n < 1 {
		n = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	p := &workerPool[T]{
		queue:   make(chan T, capacity),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			_ = p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues without blocking; false means the queue is full or closed.
func (p *workerPool[T]) Submit(t T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for queued work to finish.
func (p *workerPool[T]) Drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
