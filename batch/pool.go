package batch

import (
	"context"
	"fmt"
	"sync"
)

// Task is one unit of work run by the pool.
type Task struct {
	ID       string
	Work     func(context.Context) error
	OnFinish func(error)
}

// Pool is a fixed-size worker pool that drains a finite task stream. There
// is no capacity or drop policy: every accepted task runs exactly once
// unless the context ends first.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup
}

// NewPool starts the workers immediately.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{tasks: make(chan Task)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

// Submit hands a task to the pool, blocking until a worker accepts it.
// It reports false when the context ended before hand-off.
func (p *Pool) Submit(ctx context.Context, t Task) bool {
	select {
	case <-ctx.Done():
		return false
	case p.tasks <- t:
		return true
	}
}

// Drain stops intake and blocks until in-flight tasks finish. No Submit
// may follow.
func (p *Pool) Drain() {
	close(p.tasks)
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(ctx, t)
		}
	}
}

// run executes one task. A panic inside Work is converted to an error so a
// bad unit cannot take its worker down with it.
func (p *Pool) run(ctx context.Context, t Task) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.ID, r)
		}
		if t.OnFinish != nil {
			t.OnFinish(err)
		}
	}()
	err = t.Work(ctx)
}
