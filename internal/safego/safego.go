// Package safego launches background work that must neither crash the process
// nor be cut short by the request that started it.
package safego

import (
	"context"
	"log/slog"
	"time"
)

// Go runs fn in a new goroutine. A panic in fn is recovered and logged with name.
//
// fn receives a context that keeps the values of ctx but is not cancelled with
// it, bounded by timeout when timeout > 0. This lets a handler start follow-up
// work (an email, say) that outlives the HTTP request.
func Go(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	go func() {
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			bg, cancel = context.WithTimeout(bg, timeout)
		}
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(bg, "recovered panic in background goroutine", "task", name, "panic", r)
			}
		}()
		fn(bg)
	}()
}
