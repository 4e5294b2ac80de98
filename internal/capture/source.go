// Package capture produces timestamped screen frames at a target cadence.
// The source keeps at most one frame pending: if the consumer falls behind,
// the stale frame is dropped and replaced (latest wins).
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/zkH2O/tftcoach/internal/logging"
)

var (
	// ErrAcquisition marks a single failed capture tick. The sequence
	// continues with the next tick.
	ErrAcquisition = errors.New("frame acquisition failed")

	// ErrSourceExhausted is terminal: the capture device is permanently
	// unavailable and the pipeline must stop.
	ErrSourceExhausted = errors.New("frame source exhausted")
)

// Frame is a timestamped raster image with a monotonic sequence number.
// Immutable once produced.
type Frame struct {
	Seq        uint64
	Image      image.Image
	CapturedAt time.Time
}

// Result is one capture tick: either a frame or an explicit acquisition
// failure for that tick.
type Result struct {
	Frame Frame
	Err   error
}

// Grabber is the capture device boundary. Grab must be read-only with
// respect to the display.
type Grabber interface {
	Grab(ctx context.Context) (image.Image, error)
}

// GrabberFunc adapts a function to the Grabber interface.
type GrabberFunc func(ctx context.Context) (image.Image, error)

// Grab implements Grabber.
func (f GrabberFunc) Grab(ctx context.Context) (image.Image, error) { return f(ctx) }

// Source produces a lazy, infinite, non-restartable sequence of frames.
type Source struct {
	grabber     Grabber
	period      time.Duration
	maxFailures int

	slot chan Result // capacity 1; pending frame awaiting consumption

	mu       sync.Mutex
	started  bool
	stopped  bool
	terminal error
	stop     chan struct{}
	done     chan struct{}
}

// NewSource creates a frame source. maxConsecutiveFailures <= 0 disables the
// exhaustion limit.
func NewSource(g Grabber, period time.Duration, maxConsecutiveFailures int) *Source {
	if period <= 0 {
		period = time.Second
	}
	return &Source{
		grabber:     g,
		period:      period,
		maxFailures: maxConsecutiveFailures,
		slot:        make(chan Result, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the capture loop. A source cannot be restarted once stopped.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("capture source is not restartable")
	}
	if s.started {
		return nil
	}
	s.started = true
	go s.run(ctx)
	return nil
}

// Stop terminates the capture loop and waits for it to exit.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

// Err returns the terminal error, if the source has been exhausted.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Next blocks until a frame (or acquisition-failure tick) is pending, the
// context is cancelled, or the source terminates.
func (s *Source) Next(ctx context.Context) (Result, error) {
	select {
	case r := <-s.slot:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
		// Drain a result that may have been offered right before exit.
		select {
		case r := <-s.slot:
			return r, nil
		default:
		}
		if err := s.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, ErrSourceExhausted
	}
}

func (s *Source) run(ctx context.Context) {
	defer close(s.done)

	var seq uint64
	consecutiveFailures := 0

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		img, err := s.grabber.Grab(ctx)
		seq++

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveFailures++
			logging.Get(logging.CategoryCapture).Warn("acquisition failed (seq=%d, consecutive=%d): %v", seq, consecutiveFailures, err)
			if s.maxFailures > 0 && consecutiveFailures >= s.maxFailures {
				s.mu.Lock()
				s.terminal = fmt.Errorf("%w: %d consecutive acquisition failures", ErrSourceExhausted, consecutiveFailures)
				s.mu.Unlock()
				return
			}
			s.offer(Result{
				Frame: Frame{Seq: seq, CapturedAt: start},
				Err:   fmt.Errorf("%w: %v", ErrAcquisition, err),
			})
		} else {
			consecutiveFailures = 0
			logging.CaptureDebug("captured frame seq=%d in %v", seq, time.Since(start))
			s.offer(Result{
				Frame: Frame{Seq: seq, Image: img, CapturedAt: start},
			})
		}

		// If the grab overran the period, capture again immediately.
		if remaining := s.period - time.Since(start); remaining > 0 {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-time.After(remaining):
			}
		}
	}
}

// offer places a result in the pending slot, discarding an unconsumed one.
func (s *Source) offer(r Result) {
	select {
	case s.slot <- r:
		return
	default:
	}
	select {
	case stale := <-s.slot:
		logging.CaptureDebug("dropped unconsumed frame seq=%d (latest wins)", stale.Frame.Seq)
	default:
	}
	select {
	case s.slot <- r:
	default:
	}
}
