// Package state fuses per-frame detections and identities into a debounced,
// versioned game-state snapshot. Only the aggregator mutates snapshots;
// everyone else reads the published copy.
package state

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Snapshot is one published view of the game. Immutable after publication:
// the aggregator builds a fresh value for every version.
type Snapshot struct {
	Version   uint64
	UpdatedAt time.Time

	Stage  string
	Gold   int
	Level  int
	Health int

	// Slot key -> entity id, e.g. Board["2,3"] = "TFT16_Ahri".
	Board map[string]string
	Bench map[string]string
	Shop  map[string]string

	// Slot key -> item id for items resting on units or the item bench.
	Items map[string]string

	// Opponent name -> last observed health.
	Opponents map[string]int
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Board = copyMap(s.Board)
	out.Bench = copyMap(s.Bench)
	out.Shop = copyMap(s.Shop)
	out.Items = copyMap(s.Items)
	out.Opponents = copyIntMap(s.Opponents)
	return &out
}

// Summary renders a compact human-readable view for prompts and logs.
func (s *Snapshot) Summary() string {
	if s == nil {
		return "no snapshot"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s | gold %d | level %d | health %d\n", orDash(s.Stage), s.Gold, s.Level, s.Health)
	fmt.Fprintf(&b, "board: %s\n", joinSlots(s.Board))
	fmt.Fprintf(&b, "bench: %s\n", joinSlots(s.Bench))
	fmt.Fprintf(&b, "shop: %s", joinSlots(s.Shop))
	if len(s.Opponents) > 0 {
		names := make([]string, 0, len(s.Opponents))
		for n := range s.Opponents {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, n := range names {
			parts = append(parts, fmt.Sprintf("%s(%d)", n, s.Opponents[n]))
		}
		fmt.Fprintf(&b, "\nopponents: %s", strings.Join(parts, ", "))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinSlots(m map[string]string) string {
	if len(m) == 0 {
		return "empty"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
