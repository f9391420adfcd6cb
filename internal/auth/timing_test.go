package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/tasktrack/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_OnFailure(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   100 * time.Millisecond,
		RandomDelay: 50 * time.Millisecond,
	})
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime, false)

	elapsed := time.Since(startTime)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestTimingDelay_WaitFrom_OnSuccess_NoDelay(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   100 * time.Millisecond,
		RandomDelay: 50 * time.Millisecond,
	})
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime, true)

	assert.Less(t, time.Since(startTime), 10*time.Millisecond)
}

func TestTimingDelay_WaitFrom_OnSuccess_WithDelay(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:      100 * time.Millisecond,
		DelayOnSuccess: true,
	})
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime, true)

	assert.GreaterOrEqual(t, time.Since(startTime), 100*time.Millisecond)
}

func TestTimingDelay_WaitFrom_AdjustsForElapsedTime(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 100 * time.Millisecond})
	startTime := time.Now()

	time.Sleep(50 * time.Millisecond)

	timing.WaitFrom(context.Background(), startTime, false)

	elapsed := time.Since(startTime)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 140*time.Millisecond)
}

func TestTimingDelay_WaitFrom_NoWaitIfAlreadyExceeded(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: 50 * time.Millisecond})
	startTime := time.Now()

	time.Sleep(100 * time.Millisecond)

	timing.WaitFrom(context.Background(), startTime, false)

	assert.Less(t, time.Since(startTime), 130*time.Millisecond)
}

func TestTimingDelay_WaitFrom_StopsOnCancel(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	startTime := time.Now()

	timing.WaitFrom(ctx, startTime, false)

	assert.Less(t, time.Since(startTime), 500*time.Millisecond)
}

func TestTimingDelay_NilIsNoop(t *testing.T) {
	var timing *auth.TimingDelay
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime, false)

	assert.Less(t, time.Since(startTime), 10*time.Millisecond)
}
