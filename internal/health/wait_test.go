package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted becomes ready on the n-th probe; n <= 0 never becomes ready.
type scripted struct {
	n        int32
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Int32
}

func (s *scripted) Probe(context.Context) Result {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Add(1)
	}
	defer s.inFlight.Add(-1)
	c := s.calls.Add(1)
	return Result{Ready: s.n > 0 && c >= s.n, ObservedAt: time.Now()}
}

func TestWaitReady_ImmediatelyReady(t *testing.T) {
	c := &scripted{n: 1}
	start := time.Now()
	require.NoError(t, WaitReady(context.Background(), c, time.Second, nil))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestWaitReady_ReadyAfterRetries(t *testing.T) {
	c := &scripted{n: 3}
	interval := 50 * time.Millisecond
	start := time.Now()
	require.NoError(t, WaitReady(context.Background(), c, interval, nil))
	elapsed := time.Since(start)

	assert.Equal(t, int32(3), c.calls.Load())
	assert.GreaterOrEqual(t, elapsed, 2*interval, "interval sleep must be enforced")
	assert.Zero(t, c.overlap.Load())
}

func TestWaitReady_DeadlineWithinOneInterval(t *testing.T) {
	c := &scripted{}
	interval := 50 * time.Millisecond
	deadline := 300 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	start := time.Now()
	err := WaitReady(ctx, c, interval, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.GreaterOrEqual(t, elapsed, deadline-interval)
	assert.LessOrEqual(t, elapsed, deadline+interval+100*time.Millisecond)
	assert.Zero(t, c.overlap.Load())
}

func TestWaitReady_Abort(t *testing.T) {
	c := &scripted{}
	abort := make(chan struct{})
	time.AfterFunc(80*time.Millisecond, func() { close(abort) })

	start := time.Now()
	err := WaitReady(context.Background(), c, 20*time.Millisecond, abort)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Less(t, time.Since(start), time.Second)
}
