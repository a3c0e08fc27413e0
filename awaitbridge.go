package mcpclient

import (
	"context"
	"time"
)

// awaitWithTimeout is the await bridge described in spec §4.5/§9: it blocks
// the calling goroutine until completion resolves or deadline elapses,
// whichever is first, and translates a deadline into a *TimeoutError naming
// operation. It does not forcibly cancel completion on timeout; cancellation
// remains the caller's responsibility.
//
// In the source language this primitive drives a cooperative event loop
// until the awaited promise settles. Go's goroutines are preemptively
// scheduled by the runtime already, so the bridge collapses to a
// context-with-timeout plus a channel select — there is no separate loop to
// drive. This is the adaptation spec §9 calls out explicitly ("in runtimes
// where the event loop and user threads are the same, the bridge instead
// drives the loop until completion"): here, every goroutine already *is*
// such a runtime.
func awaitWithTimeout[T any](ctx context.Context, completion *Completion[T], timeout time.Duration, operation string) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := completion.Wait(tctx)
	if err != nil && tctx.Err() != nil && ctx.Err() == nil {
		// The timeout fired, not the caller's own context; report a
		// TimeoutError naming the operation instead of a bare
		// context.DeadlineExceeded, per spec §4.5/§8 scenario S6.
		var zero T
		return zero, NewTimeoutError(operation)
	}
	return value, err
}
