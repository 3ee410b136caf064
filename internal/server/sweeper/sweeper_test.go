package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/stretchr/testify/assert"
)

type countingTarget struct {
	calls atomic.Int64
	err   error
}

func (c *countingTarget) SweepExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	target := &countingTarget{}
	s := New(target, 5*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return target.calls.Load() >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_KeepsGoingAfterErrors(t *testing.T) {
	target := &countingTarget{err: errors.New("db down")}
	s := New(target, 5*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return target.calls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestSweepOnce(t *testing.T) {
	target := &countingTarget{}
	New(target, time.Hour, logging.Discard()).SweepOnce(context.Background())
	assert.Equal(t, int64(1), target.calls.Load())
}
