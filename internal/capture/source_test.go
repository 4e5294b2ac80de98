package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestSource_ProducesMonotonicSequence(t *testing.T) {
	src := NewSource(GrabberFunc(func(ctx context.Context) (image.Image, error) {
		return testImage(), nil
	}), 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Start(ctx))
	defer src.Stop()

	var last uint64
	for i := 0; i < 5; i++ {
		res, err := src.Next(ctx)
		require.NoError(t, err)
		require.NoError(t, res.Err)
		assert.Greater(t, res.Frame.Seq, last)
		last = res.Frame.Seq
	}
}

func TestSource_DropOldestBackpressure(t *testing.T) {
	var produced atomic.Uint64
	src := NewSource(GrabberFunc(func(ctx context.Context) (image.Image, error) {
		produced.Add(1)
		return testImage(), nil
	}), time.Millisecond, 0)

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))
	defer src.Stop()

	// Let the producer run well ahead of the consumer.
	for produced.Load() < 20 {
		time.Sleep(time.Millisecond)
	}

	res, err := src.Next(ctx)
	require.NoError(t, err)
	first := res.Frame.Seq

	// Slow consumer: several frames were produced meanwhile, but only the
	// latest one is pending.
	time.Sleep(20 * time.Millisecond)
	res, err = src.Next(ctx)
	require.NoError(t, err)
	assert.Greater(t, res.Frame.Seq, first+1, "intermediate frames must be dropped, not queued")

	// The slot never holds more than one frame: two immediate reads cannot
	// both succeed with stale data.
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	res2, err := src.Next(waitCtx)
	if err == nil {
		assert.Greater(t, res2.Frame.Seq, res.Frame.Seq)
	}
}

func TestSource_AcquisitionFailureIsExplicitNotTerminal(t *testing.T) {
	var calls atomic.Int32
	src := NewSource(GrabberFunc(func(ctx context.Context) (image.Image, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("device busy")
		}
		return testImage(), nil
	}), time.Millisecond, 0)

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))
	defer src.Stop()

	res, err := src.Next(ctx)
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrAcquisition)
	assert.NotZero(t, res.Frame.Seq, "failed tick still carries its sequence number")

	// The sequence continues.
	res, err = src.Next(ctx)
	require.NoError(t, err)
	assert.NoError(t, res.Err)
}

func TestSource_ExhaustionIsTerminal(t *testing.T) {
	src := NewSource(GrabberFunc(func(ctx context.Context) (image.Image, error) {
		return nil, errors.New("display gone")
	}), time.Millisecond, 3)

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))

	// Drain failure ticks until the source gives up.
	deadline := time.After(time.Second)
	for {
		res, err := src.Next(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrSourceExhausted)
			assert.ErrorIs(t, src.Err(), ErrSourceExhausted)
			return
		}
		require.Error(t, res.Err)
		select {
		case <-deadline:
			t.Fatal("source never became exhausted")
		default:
		}
	}
}

func TestSource_NotRestartable(t *testing.T) {
	src := NewSource(GrabberFunc(func(ctx context.Context) (image.Image, error) {
		return testImage(), nil
	}), time.Millisecond, 0)

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))
	src.Stop()

	err := src.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not restartable")
}

func TestSource_OverrunCapturesImmediately(t *testing.T) {
	// Grab takes 3x the period; ticks should still arrive back to back
	// rather than queueing up.
	var mu sync.Mutex
	var stamps []time.Time
	done := make(chan struct{})
	src := NewSource(GrabberFunc(func(ctx context.Context) (image.Image, error) {
		time.Sleep(15 * time.Millisecond)
		mu.Lock()
		if len(stamps) < 3 {
			stamps = append(stamps, time.Now())
			if len(stamps) == 3 {
				close(done)
			}
		}
		mu.Unlock()
		return testImage(), nil
	}), 5*time.Millisecond, 0)

	ctx := context.Background()
	require.NoError(t, src.Start(ctx))
	defer src.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for grabs")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < 3; i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.Less(t, gap, 25*time.Millisecond, fmt.Sprintf("gap %d should be roughly one grab, got %v", i, gap))
	}
}
