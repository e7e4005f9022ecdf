package tessera

import (
	"runtime"
	"sync"
)

// WorkerPool is a fixed set of goroutines sized once at startup and shared
// by every subsystem. Work is submitted as plain funcs; RunBatches blocks
// until a whole batch set has drained, which is the join barrier the
// collision frame relies on.
type WorkerPool struct {
	tasks   chan func()
	workers int

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWorkerPool starts workers goroutines. workers <= 0 selects
// NumCPU-1 with a floor of 1.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	p := &WorkerPool{
		tasks:   make(chan func(), workers*4),
		workers: workers,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

func (p *WorkerPool) loop() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

func (p *WorkerPool) Workers() int { return p.workers }

// Submit queues one task. Panics if called after Close.
func (p *WorkerPool) Submit(task func()) {
	p.tasks <- task
}

// RunBatches submits every batch and waits for all of them to finish.
func (p *WorkerPool) RunBatches(batches []func()) {
	var wg sync.WaitGroup
	wg.Add(len(batches))
	for _, b := range batches {
		task := b
		p.tasks <- func() {
			defer wg.Done()
			task()
		}
	}
	wg.Wait()
}

// Close stops the workers after in-flight tasks finish. Idempotent.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
