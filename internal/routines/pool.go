// Package routines provides a fixed-size go-routine pool.
package routines

import "sync"

// Pool runs queued functions on a fixed number of go-routines.
type Pool struct {
	workCh   chan func()
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	waitOnce sync.Once
}

// NewPool starts a pool with workers go-routines.
func NewPool(workers int) *Pool {
	if workers < 1 {
		panic("routines: pool must have at least 1 worker")
	}

	p := Pool{workCh: make(chan func())}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return &p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for fn := range p.workCh {
		fn()
	}
}

// Queue schedules fn for execution.
// It blocks until a worker picks it up.
// Queue panics when it is called after Wait.
func (p *Pool) Queue(fn func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		panic("routines: Queue called on terminated pool")
	}

	p.workCh <- fn
}

// Wait stops accepting new work and waits until all queued functions
// finished.
func (p *Pool) Wait() {
	p.waitOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()
	})

	p.wg.Wait()
}
