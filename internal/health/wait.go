package health

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrNotReady is returned by WaitReady when the deadline passes without a
	// successful probe.
	ErrNotReady = errors.New("sidecar not ready")
	// ErrAborted is returned by WaitReady when the abort channel closes first.
	ErrAborted = errors.New("readiness wait aborted")

	errProbe = errors.New("probe not ready")
)

// WaitReady probes c every interval until a probe reports ready, ctx is done,
// or abort is closed. Probes never overlap: the next one starts one interval
// after the previous one returned. All timers are released on return.
func WaitReady(ctx context.Context, c Checker, interval time.Duration, abort <-chan struct{}) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var aborted atomic.Bool
	if abort != nil {
		go func() {
			select {
			case <-abort:
				aborted.Store(true)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	attempts := 0
	op := func() error {
		attempts++
		if c.Probe(ctx).Ready {
			return nil
		}
		return errProbe
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	switch {
	case err == nil:
		return nil
	case aborted.Load():
		return ErrAborted
	default:
		return fmt.Errorf("%w after %d probes: %w", ErrNotReady, attempts, err)
	}
}
