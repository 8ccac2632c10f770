package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSafeGoRunsFunction(t *testing.T) {
	var executed atomic.Bool

	SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	waitFor(t, executed.Load)
}

func TestSafeGoRecoversPanic(t *testing.T) {
	var after atomic.Bool

	SafeGo(context.Background(), time.Second, "panicking task", func(ctx context.Context) error {
		defer after.Store(true)
		panic("boom")
	})

	waitFor(t, after.Load)
}

func TestSafeGoSwallowsError(t *testing.T) {
	var executed atomic.Bool

	SafeGo(context.Background(), time.Second, "failing task", func(ctx context.Context) error {
		executed.Store(true)
		return errors.New("transient")
	})

	waitFor(t, executed.Load)
}

func TestSafeGoEnforcesTimeout(t *testing.T) {
	var expired atomic.Bool

	SafeGo(context.Background(), 10*time.Millisecond, "slow task", func(ctx context.Context) error {
		<-ctx.Done()
		expired.Store(true)
		return ctx.Err()
	})

	waitFor(t, expired.Load)
}

func TestSafeGoNoError(t *testing.T) {
	var executed atomic.Bool

	SafeGoNoError(context.Background(), time.Second, "no-error task", func(ctx context.Context) {
		executed.Store(true)
	})

	waitFor(t, executed.Load)
	assert.True(t, executed.Load())
}
