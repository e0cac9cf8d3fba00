package engine

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool fed by a bounded queue.
// Submit never blocks; once drained the pool rejects new work.
type workerPool[T any] struct {
	mu      sync.RWMutex
	closed  bool
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
}

// newWorkerPool starts n workers reading from a queue of capacity depth.
func newWorkerPool[T any](ctx context.Context, n, depth int, fn func(context.Context, T)) *workerPool[T] {
	if n < 1 {
		n = 1
	}
	p := &workerPool[T]{
		queue:   make(chan T, depth),
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
			p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues t, returning false when the queue is full or the pool is drained.
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

// Drain stops accepting work and waits for queued jobs to finish.
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

func (p *workerPool[T]) QueueLen() int { return len(p.queue) }

func (p *workerPool[T]) QueueCap() int { return cap(p.queue) }
