package utils_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottler(t *testing.T) {
	var done atomic.Int32
	throttler := utils.NewThrottler(2, &done).WithMaxQueueLen(2)
	release := make(chan struct{})
	work := func(d *atomic.Int32) error {
		<-release
		d.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	start := func(wantRunning, wantQueued int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, throttler.Do(work))
		}()
		require.Eventually(t, func() bool {
			return throttler.JobsRunning() == wantRunning && throttler.QueueLen() == wantQueued
		}, time.Second, time.Millisecond)
	}

	start(1, 0)
	start(2, 0)
	start(2, 1)
	start(2, 2)
	require.ErrorIs(t, throttler.Do(work), utils.ErrResourceBusy)

	release <- struct{}{}
	require.Eventually(t, func() bool { return throttler.QueueLen() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 0, throttler.JobsRunning())
	assert.Equal(t, 0, throttler.QueueLen())
	assert.Equal(t, int32(4), done.Load())
}

func TestThrottlerContext(t *testing.T) {
	throttler := utils.NewThrottler(1, new(struct{}))
	release := make(chan struct{})
	go func() {
		_ = throttler.Do(func(*struct{}) error {
			<-release
			return nil
		})
	}()
	require.Eventually(t, func() bool { return throttler.JobsRunning() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := throttler.DoContext(ctx, func(*struct{}) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, throttler.QueueLen())
	close(release)
}
