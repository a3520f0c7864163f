// internal/loop/loop.go
package loop

/*
 * Single serialized execution context.
 *
 * Every mutation of inspector state that must not race (batch queue, branch
 * tracking, delivery of fetched specs) is posted here and runs on one
 * goroutine in FIFO order. The queue is unbounded so a task may Post
 * follow-up work without blocking on itself.
 *
 * Stop drains tasks already queued, then returns. Post after Stop returns
 * types.ErrLoopClosed.
 */

import (
	"context"
	"log/slog"
	"sync"

	"github.com/solatis/schemainspector/internal/types"
)

// Loop runs posted tasks one at a time on its own goroutine.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

// New starts a loop. A nil logger discards panic reports.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Loop{
		done:   make(chan struct{}),
		logger: logger,
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post enqueues task. It never blocks on the task itself.
func (l *Loop) Post(task func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return types.ErrLoopClosed
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return nil
}

// Flush blocks until every task posted before the call has run.
// Must not be called from a task; it would wait on itself.
func (l *Loop) Flush(ctx context.Context) error {
	reached := make(chan struct{})
	if err := l.Post(func() { close(reached) }); err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new tasks, runs the ones already queued and waits for the
// loop goroutine to exit. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.done
}

// Pending reports the number of queued tasks not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(task)
	}
}

// exec runs one task. A panicking task is logged and the loop carries on.
func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", r)
		}
	}()
	task()
}
