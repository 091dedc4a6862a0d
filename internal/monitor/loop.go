package monitor

import (
	"context"
	"time"
)

// StartLoop runs a tick right away and then on every interval until ctx is
// done. It returns immediately.
func (r *Runner) StartLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			r.tick(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (r *Runner) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("monitor tick panicked", "panic", rec)
		}
	}()
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.log.Error("monitor tick failed", "error", err)
	}
}
