package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/solatis/schemainspector/internal/types"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if err := l.Post(func() { got = append(got, i) }); err != nil {
			t.Fatalf("Post() error = %v, want nil", err)
		}
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v, want nil", err)
	}

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_ConcurrentPostersSerialized(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	// No mutex on counter: tasks must not overlap.
	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_ = l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v, want nil", err)
	}
	if counter != 2000 {
		t.Errorf("counter = %d, want 2000", counter)
	}
}

func TestLoop_PostFromTask(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	done := make(chan struct{})
	_ = l.Post(func() {
		_ = l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested task never ran")
	}
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := New(nil)
	defer l.Stop()

	ran := false
	_ = l.Post(func() { panic("boom") })
	_ = l.Post(func() { ran = true })
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v, want nil", err)
	}
	if !ran {
		t.Error("task after a panicking task did not run")
	}
}

func TestLoop_StopDrainsAndRejects(t *testing.T) {
	l := New(nil)

	block := make(chan struct{})
	_ = l.Post(func() { <-block })
	count := 0
	for i := 0; i < 5; i++ {
		_ = l.Post(func() { count++ })
	}

	stopped := make(chan struct{})
	go func() {
		l.Stop()
		close(stopped)
	}()
	close(block)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
	if count != 5 {
		t.Errorf("drained %d tasks, want 5", count)
	}

	if err := l.Post(func() {}); !errors.Is(err, types.ErrLoopClosed) {
		t.Errorf("Post() after Stop error = %v, want ErrLoopClosed", err)
	}
	if err := l.Flush(context.Background()); !errors.Is(err, types.ErrLoopClosed) {
		t.Errorf("Flush() after Stop error = %v, want ErrLoopClosed", err)
	}
	l.Stop()
}

func TestLoop_FlushHonorsContext(t *testing.T) {
	l := New(nil)
	block := make(chan struct{})
	defer func() {
		close(block)
		l.Stop()
	}()

	_ = l.Post(func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush() error = %v, want DeadlineExceeded", err)
	}
	if l.Pending() == 0 {
		t.Error("Pending() = 0, want the flush barrier still queued")
	}
}
