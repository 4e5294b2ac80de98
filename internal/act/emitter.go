// Package act emits in-game inputs on a humanized schedule. Every dispatch
// is delayed by a randomized interval and at most one action may be in
// flight at a time, so emitted inputs never form a machine-regular pattern.
package act

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os/exec"
	"sync"
	"time"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// ErrSuppressed is returned when an action is requested while another is
// still pending or executing.
var ErrSuppressed = errors.New("action suppressed: another action is outstanding")

// Dispatcher performs the actual input delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, action string) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, action string) error

func (f DispatcherFunc) Dispatch(ctx context.Context, action string) error {
	return f(ctx, action)
}

// ExecDispatcher delivers inputs by running an external command, e.g.
// ["xdotool", "key", "d"]. The argv runs verbatim: it already encodes the
// complete input event, and the action name is only a label for logs and
// completion hooks. A positive Timeout bounds each run so a hung command
// cannot hold the emitter busy forever.
type ExecDispatcher struct {
	Argv    []string
	Timeout time.Duration
}

func (d *ExecDispatcher) Dispatch(ctx context.Context, action string) error {
	if len(d.Argv) == 0 {
		return errors.New("dispatch command not configured")
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, d.Argv[0], d.Argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("dispatch %q: %w (%s)", action, err, out)
	}
	return nil
}

// Jitter describes the randomized pre-action delay.
type Jitter struct {
	Mean   time.Duration
	Stddev time.Duration
}

// Sample draws one delay from the normal distribution, clamped at zero.
func (j Jitter) Sample(rng *rand.Rand) time.Duration {
	d := time.Duration(float64(j.Mean) + rng.NormFloat64()*float64(j.Stddev))
	if d < 0 {
		return 0
	}
	return d
}

// Emitter serializes action delivery: one outstanding action, jittered start.
type Emitter struct {
	dispatcher Dispatcher
	jitter     Jitter

	mu          sync.Mutex
	rng         *rand.Rand
	outstanding bool

	// onDone, when set, observes every completed dispatch. Used by the
	// scheduler to learn when the emitter is free again.
	onDone func(action string, err error)
}

// NewEmitter builds an emitter. seed fixes the jitter stream; pass
// time.Now().UnixNano() outside of tests.
func NewEmitter(d Dispatcher, jitter Jitter, seed int64) *Emitter {
	return &Emitter{
		dispatcher: d,
		jitter:     jitter,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// OnDone registers a completion hook. Must be called before Emit.
func (e *Emitter) OnDone(fn func(action string, err error)) {
	e.mu.Lock()
	e.onDone = fn
	e.mu.Unlock()
}

// Emit schedules one action. It returns immediately: the action fires after
// a jittered delay on its own goroutine. If an action is already
// outstanding the request is dropped with ErrSuppressed, never queued.
func (e *Emitter) Emit(ctx context.Context, action string) error {
	e.mu.Lock()
	if e.outstanding {
		e.mu.Unlock()
		logging.Scout("suppressed %q: action already outstanding", action)
		return ErrSuppressed
	}
	e.outstanding = true
	delay := e.jitter.Sample(e.rng)
	done := e.onDone
	e.mu.Unlock()

	logging.ScoutDebug("scheduling %q after %v", action, delay)
	go func() {
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(delay):
			err = e.dispatcher.Dispatch(ctx, action)
		}
		if err != nil {
			logging.Scout("action %q failed: %v", action, err)
		} else {
			logging.Scout("action %q delivered", action)
		}

		e.mu.Lock()
		e.outstanding = false
		e.mu.Unlock()
		if done != nil {
			done(action, err)
		}
	}()
	return nil
}
