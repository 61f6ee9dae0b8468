package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// task is one unit of background work: a promotion, refresh, prefetch, or
// remote cleanup.
type task struct {
	name string
	fn   func(ctx context.Context)
}

// workerPool runs background tasks on a fixed set of goroutines. The queue
// is bounded; tasks submitted while it is full are dropped and logged,
// never blocking the caller.
type workerPool struct {
	queue   chan task
	timeout time.Duration
	log     *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWorkerPool(count, queueDepth int, timeout time.Duration, log *zap.Logger) *workerPool {
	p := &workerPool{
		queue:   make(chan task, queueDepth),
		timeout: timeout,
		log:     log,
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// submit queues a task, reporting false when the queue is full or the pool
// is stopped.
func (p *workerPool) submit(name string, fn func(ctx context.Context)) bool {
	select {
	case <-p.stopCh:
		return false
	default:
	}

	select {
	case p.queue <- task{name: name, fn: fn}:
		return true
	default:
		p.log.Warn("background queue full, dropping task", zap.String("task", name))
		return false
	}
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.queue:
			p.run(t)
		case <-p.stopCh:
			return
		}
	}
}

func (p *workerPool) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	t.fn(ctx)
}

// stop halts the workers. Queued tasks that have not started are dropped.
func (p *workerPool) stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}
