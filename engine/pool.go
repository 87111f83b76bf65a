package engine

import (
	"runtime"
	"sync"

	"github.com/lixenwraith/vi-highway/core"
)

// Pool is a fixed set of worker goroutines running fork-join batches over an index space
// Each For call returns only after every index has been processed, acting as the phase barrier
type Pool struct {
	workers int
	tasks   chan task
	wg      sync.WaitGroup

	closeOnce sync.Once
	closed    bool
}

// task is a contiguous chunk of a batch; indices lo, lo+stride, ... below hi
type task struct {
	fn     func(i int)
	lo, hi int
	stride int
	done   *sync.WaitGroup
}

func (t task) run() {
	defer t.done.Done()
	for i := t.lo; i < t.hi; i += t.stride {
		t.fn(i)
	}
}

// NewPool starts workers goroutines; workers < 1 uses GOMAXPROCS
// A single-worker pool runs batches inline on the caller
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{workers: workers}
	if workers == 1 {
		return p
	}

	p.tasks = make(chan task, workers*4)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		core.Go(p.worker)
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.run()
	}
}

// Workers returns the pool size
func (p *Pool) Workers() int {
	return p.workers
}

// For calls fn for every i in [0, n), batch indices per task, and waits for all of them
func (p *Pool) For(n, batch int, fn func(i int)) {
	p.run(0, n, 1, batch, fn)
}

// ForParity calls fn for every i in [0, n) with i%2 == parity and waits for all of them
func (p *Pool) ForParity(n, parity, batch int, fn func(i int)) {
	p.run(parity, n, 2, batch, fn)
}

func (p *Pool) run(start, n, stride, batch int, fn func(i int)) {
	if batch < 1 {
		batch = 1
	}

	var done sync.WaitGroup
	if p.workers == 1 || p.closed {
		done.Add(1)
		task{fn: fn, lo: start, hi: n, stride: stride, done: &done}.run()
		return
	}

	span := batch * stride
	for lo := start; lo < n; lo += span {
		done.Add(1)
		p.tasks <- task{fn: fn, lo: lo, hi: min(lo+span, n), stride: stride, done: &done}
	}
	done.Wait()
}

// Close stops the workers after queued tasks drain; later batches run inline
// Must not be called concurrently with For
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed = true
		if p.tasks != nil {
			close(p.tasks)
			p.wg.Wait()
		}
	})
}
