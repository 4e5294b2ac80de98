package state

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// Observation is one frame's worth of resolved field values, keyed by field
// name: "stage", "gold", "board/<r>,<c>", "bench/<i>", "shop/<i>",
// "item/<slot>", "opp/<name>". A key absent from the map means the field was
// not seen this frame.
type Observation map[string]string

// visionPrefixes are the field families owned by the frame pipeline. Absence
// debouncing applies only to these: a frame that omits a vision key is
// evidence the field is gone. Fields fed from other sources (level, health)
// are updated through ObserveScoped and never cleared by a frame.
var visionPrefixes = []string{"stage", "gold", "board/", "bench/", "shop/", "item/", "opp/"}

func visionOwned(key string) bool {
	for _, p := range visionPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

type fieldState struct {
	committed string
	candidate string
	hits      int // consecutive frames confirming candidate
	misses    int // consecutive frames with the field absent
}

// Aggregator folds per-frame observations into a debounced snapshot. A value
// must persist for n consecutive frames before it is committed, and a
// committed value must be absent for n consecutive frames before it is
// cleared. A single contradicting frame resets a pending candidate.
type Aggregator struct {
	mu     sync.Mutex
	n      int
	fields map[string]*fieldState

	published atomic.Pointer[Snapshot]

	// changed carries a coalesced "a new version exists" signal; cap 1 so
	// publishes never block and a slow consumer sees at most one pending
	// notification.
	changed chan struct{}
}

// NewAggregator builds an aggregator requiring debounceFrames consecutive
// confirmations. Values below 1 are treated as 1 (commit immediately).
func NewAggregator(debounceFrames int) *Aggregator {
	if debounceFrames < 1 {
		debounceFrames = 1
	}
	a := &Aggregator{
		n:       debounceFrames,
		fields:  make(map[string]*fieldState),
		changed: make(chan struct{}, 1),
	}
	a.published.Store(&Snapshot{UpdatedAt: time.Now()})
	return a
}

// Current returns the latest published snapshot. Never nil.
func (a *Aggregator) Current() *Snapshot {
	return a.published.Load()
}

// Changed returns the notification channel. One receive may cover several
// published versions; consumers should read Current after each signal.
func (a *Aggregator) Changed() <-chan struct{} {
	return a.changed
}

// Observe folds one frame into the debounce state. Every vision-owned field
// not present in obs counts as a miss for that field. Publishes a new
// snapshot version only if some field actually changed.
func (a *Aggregator) Observe(frameSeq uint64, obs Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dirty := false
	for key, val := range obs {
		if a.observeField(key, val) {
			dirty = true
		}
	}
	for key, fs := range a.fields {
		if _, seen := obs[key]; seen || !visionOwned(key) {
			continue
		}
		if a.missField(key, fs) {
			dirty = true
		}
	}

	if dirty {
		a.publishLocked(frameSeq)
	}
}

// ObserveScoped applies values from a non-frame source. Debounce still
// applies, but absent keys are left untouched: a poller that reports only
// level and health never clears board state.
func (a *Aggregator) ObserveScoped(obs Observation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dirty := false
	for key, val := range obs {
		if a.observeField(key, val) {
			dirty = true
		}
	}
	if dirty {
		a.publishLocked(a.published.Load().Version)
	}
}

// observeField records one observed value. Reports whether the committed
// value changed.
func (a *Aggregator) observeField(key, val string) bool {
	fs := a.fields[key]
	if fs == nil {
		fs = &fieldState{}
		a.fields[key] = fs
	}
	fs.misses = 0

	if val == fs.committed {
		// Confirms the committed value; any pending candidate was a blip.
		fs.candidate = ""
		fs.hits = 0
		return false
	}
	if val != fs.candidate {
		fs.candidate = val
		fs.hits = 0
	}
	fs.hits++
	if fs.hits < a.n {
		return false
	}
	logging.StateDebug("commit %s: %q -> %q after %d frames", key, fs.committed, val, fs.hits)
	fs.committed = val
	fs.candidate = ""
	fs.hits = 0
	return true
}

// missField records one frame of absence. Reports whether the committed
// value was cleared.
func (a *Aggregator) missField(key string, fs *fieldState) bool {
	// A miss kills any pending candidate outright.
	fs.candidate = ""
	fs.hits = 0
	if fs.committed == "" {
		return false
	}
	fs.misses++
	if fs.misses < a.n {
		return false
	}
	logging.StateDebug("clear %s: %q absent for %d frames", key, fs.committed, fs.misses)
	fs.committed = ""
	fs.misses = 0
	return true
}

func (a *Aggregator) publishLocked(frameSeq uint64) {
	prev := a.published.Load()
	next := a.buildLocked()
	next.Version = prev.Version + 1
	next.UpdatedAt = time.Now()
	a.published.Store(next)
	logging.State("published v%d (frame %d)", next.Version, frameSeq)

	select {
	case a.changed <- struct{}{}:
	default:
	}
}

// buildLocked assembles a snapshot from the committed field values.
func (a *Aggregator) buildLocked() *Snapshot {
	s := &Snapshot{
		Board:     make(map[string]string),
		Bench:     make(map[string]string),
		Shop:      make(map[string]string),
		Items:     make(map[string]string),
		Opponents: make(map[string]int),
	}
	for key, fs := range a.fields {
		if fs.committed == "" {
			continue
		}
		switch {
		case key == "stage":
			s.Stage = fs.committed
		case key == "gold":
			s.Gold = atoiOr(fs.committed, 0)
		case key == "level":
			s.Level = atoiOr(fs.committed, 0)
		case key == "health":
			s.Health = atoiOr(fs.committed, 0)
		case strings.HasPrefix(key, "board/"):
			s.Board[strings.TrimPrefix(key, "board/")] = fs.committed
		case strings.HasPrefix(key, "bench/"):
			s.Bench[strings.TrimPrefix(key, "bench/")] = fs.committed
		case strings.HasPrefix(key, "shop/"):
			s.Shop[strings.TrimPrefix(key, "shop/")] = fs.committed
		case strings.HasPrefix(key, "item/"):
			s.Items[strings.TrimPrefix(key, "item/")] = fs.committed
		case strings.HasPrefix(key, "opp/"):
			s.Opponents[strings.TrimPrefix(key, "opp/")] = atoiOr(fs.committed, 0)
		}
	}
	return s
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
