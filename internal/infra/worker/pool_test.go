//go:build !integration

package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPool_RunsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(3, newTestLogger())
	p.Start(ctx)
	defer p.Stop()

	var done int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := p.Submit(func(ctx context.Context) error {
			defer wg.Done()
			if atomic.AddInt32(&done, 1) == 5 {
				panic("boom")
			}
			return errors.New("ignored")
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()
	if got := atomic.LoadInt32(&done); got != 10 {
		t.Fatalf("ran %d tasks, want 10", got)
	}
}

func TestPool_SubmitWhenFull(t *testing.T) {
	p := NewPool(1, newTestLogger()) // not started: nothing drains the queue
	for i := 0; i < 4; i++ {
		if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := p.Submit(nil); err == nil {
		t.Fatal("expected an error for a nil task")
	}
}

func TestPool_StopTwice(t *testing.T) {
	p := NewPool(2, newTestLogger())
	p.Start(context.Background())
	done := make(chan struct{})
	go func() {
		p.Stop()
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
