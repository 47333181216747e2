package scheduler

import "sync"

// workerPool runs submitted closures on a fixed number of goroutines.
// Bounded concurrency comes from the worker count; tasks queue in the
// channel until a worker frees up. Callers bound their own wait with a
// deadline on the task's result channel.
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newWorkerPool(workers, queueDepth int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth < workers {
		queueDepth = workers
	}
	p := &workerPool{tasks: make(chan func(), queueDepth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for fn := range p.tasks {
				fn()
			}
		}()
	}
	return p
}

// submit enqueues fn. Returns false once the pool is closed or the task
// queue is saturated; callers surface that as backpressure.
func (p *workerPool) submit(fn func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	// Enqueue under the lock so close cannot race the send.
	select {
	case p.tasks <- fn:
		p.mu.Unlock()
		return true
	default:
		p.mu.Unlock()
		return false
	}
}

func (p *workerPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// close stops intake and waits for queued tasks to drain.
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
