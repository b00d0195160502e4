package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsEveryTask(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	var ran atomic.Int64
	var mu sync.Mutex
	finished := make(map[string]error)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("task-%d", i)
		ok := pool.Submit(context.Background(), Task{
			ID:   id,
			Work: func(context.Context) error { ran.Add(1); return nil },
			OnFinish: func(err error) {
				mu.Lock()
				finished[id] = err
				mu.Unlock()
			},
		})
		if !ok {
			t.Fatalf("submit %s rejected", id)
		}
	}
	pool.Drain()
	if ran.Load() != 20 {
		t.Fatalf("ran %d tasks, want 20", ran.Load())
	}
	if len(finished) != 20 {
		t.Fatalf("OnFinish fired for %d tasks, want 20", len(finished))
	}
	for id, err := range finished {
		if err != nil {
			t.Fatalf("task %s finished with %v", id, err)
		}
	}
}

func TestPoolPropagatesWorkError(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	boom := errors.New("boom")
	var got error
	pool.Submit(context.Background(), Task{
		ID:       "bad",
		Work:     func(context.Context) error { return boom },
		OnFinish: func(err error) { got = err },
	})
	pool.Drain()
	if !errors.Is(got, boom) {
		t.Fatalf("OnFinish error = %v, want boom", got)
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	var mu sync.Mutex
	var errs []error
	submit := func(id string, work func(context.Context) error) {
		t.Helper()
		ok := pool.Submit(context.Background(), Task{ID: id, Work: work, OnFinish: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}})
		if !ok {
			t.Fatalf("submit %s rejected", id)
		}
	}
	submit("explodes", func(context.Context) error { panic("bad record") })
	submit("survives", func(context.Context) error { return nil })
	pool.Drain()

	if len(errs) != 2 {
		t.Fatalf("OnFinish fired %d times, want 2", len(errs))
	}
	var panicked, clean int
	for _, err := range errs {
		switch {
		case err == nil:
			clean++
		case strings.Contains(err.Error(), "panicked"):
			panicked++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if panicked != 1 || clean != 1 {
		t.Fatalf("panicked=%d clean=%d", panicked, clean)
	}
}

func TestPoolSubmitRejectsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	block := make(chan struct{})
	if ok := pool.Submit(ctx, Task{ID: "holder", Work: func(context.Context) error { <-block; return nil }}); !ok {
		t.Fatal("first submit rejected")
	}

	// The only worker is busy, so this submit parks until the context ends.
	accepted := make(chan bool)
	go func() {
		accepted <- pool.Submit(ctx, Task{ID: "late", Work: func(context.Context) error { return nil }})
	}()
	cancel()
	if <-accepted {
		t.Fatal("submit accepted after cancellation")
	}
	close(block)
	pool.Drain()
}
