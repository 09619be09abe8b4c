// Package schedule runs the agent's periodic protocol tasks. Timers are
// plain tickers; the only true suspension points are the store and
// network calls inside the task bodies. Cancellation is carried by the
// context: pending timer fires stop immediately, but an in-flight task
// body runs to completion.
package schedule

import (
	"context"
	"time"
)

// Task is one periodic task body. It receives the scheduler context and
// must return promptly when it observes cancellation.
type Task func(ctx context.Context)

// Runner owns a set of periodic tasks cancelled together.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	count  int
}

// NewRunner derives a runner from the parent context.
func NewRunner(parent context.Context) *Runner {
	ctx, cancel := context.WithCancel(parent)
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}, 8),
	}
}

// Every schedules task to run each period. When immediate is set the
// first run happens before the first tick.
func (r *Runner) Every(period time.Duration, immediate bool, task Task) {
	r.count++
	go func() {
		defer func() { r.done <- struct{}{} }()

		if immediate {
			task(r.ctx)
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				task(r.ctx)
			}
		}
	}()
}

// Stop cancels all tasks and waits for their goroutines to exit.
func (r *Runner) Stop() {
	r.cancel()
	for i := 0; i < r.count; i++ {
		<-r.done
	}
}

// Context exposes the runner's cancellation token.
func (r *Runner) Context() context.Context {
	return r.ctx
}
