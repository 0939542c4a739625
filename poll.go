package directauth

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval is used when a binding carries no interval.
const DefaultPollInterval = 5 * time.Second

// PollOptions tunes PollUntilDone.
type PollOptions struct {
	// DefaultInterval replaces DefaultPollInterval when the binding has no interval.
	DefaultInterval time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnPending is called after every AuthorizationPending result.
	OnPending func(*AuthorizationPending)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollUntilDone re-polls an OobPending or Transfer continuation at the binding's interval
// until the flow leaves AuthorizationPending. It returns an InternalError with
// ErrorCodePollingExpired once the binding expires, and Canceled when ctx is canceled.
//
// The flow itself never schedules; this helper is built only on the public Flow API.
func PollUntilDone(ctx context.Context, f *Flow, c Continuation, opts PollOptions) State {
	pollable := false
	switch v := c.(type) {
	case *OobPending:
		pollable = v != nil
	case *Transfer:
		pollable = v != nil
	}
	if !pollable {
		return newInternalError(ErrorCodeInvalidContinuation, "only OobPending and Transfer can be polled", nil)
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	fallback := opts.DefaultInterval
	if fallback <= 0 {
		fallback = DefaultPollInterval
	}

	binding := c.Binding()
	interval := fallback
	if binding.Interval != nil && *binding.Interval > 0 {
		interval = time.Duration(*binding.Interval) * time.Second
	}

	for {
		if binding.Expired(f.sc.now()) {
			return newInternalError(ErrorCodePollingExpired, "binding expired before approval", nil)
		}
		if err := sleep(ctx, interval); err != nil {
			if errors.Is(err, context.Canceled) {
				return &Canceled{}
			}
			return newInternalError(ErrorCodeUnknown, err.Error(), err)
		}

		var next State
		switch cont := c.(type) {
		case *OobPending:
			next = f.ProceedOob(ctx, cont)
		case *Transfer:
			next = f.ProceedTransfer(ctx, cont)
		}

		pending, ok := next.(*AuthorizationPending)
		if !ok {
			return next
		}
		if opts.OnPending != nil {
			opts.OnPending(pending)
		}
	}
}
