package reason

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zkH2O/tftcoach/internal/state"
)

const systemPrompt = `You are a Teamfight Tactics coach speaking to the player mid-game.
Give one short, concrete instruction the player can act on right now: what to
buy, sell, level, reroll, or reposition, and why in a few words. Two sentences
at most. No markdown, no lists, no hedging. If the state is too sparse to
advise on, say what to check next.`

// userPrompt renders the snapshot and any retrieved knowledge into the
// request body. Retrieved documents come first so the model reads the meta
// context before the board.
func userPrompt(snap *state.Snapshot, docs []string) string {
	var b strings.Builder
	if len(docs) > 0 {
		b.WriteString("Relevant notes:\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(d))
		}
		b.WriteString("\n")
	}
	b.WriteString("Current state:\n")
	b.WriteString(snap.Summary())
	b.WriteString("\n\nWhat should the player do right now?")
	return b.String()
}

// retrievalQuery compresses the snapshot into a short lookup string: the
// stage plus the units on board, which is what comp guides are keyed on.
func retrievalQuery(snap *state.Snapshot) string {
	units := make(map[string]struct{})
	for _, id := range snap.Board {
		units[id] = struct{}{}
	}
	names := make([]string, 0, len(units))
	for id := range units {
		names = append(names, id)
	}
	sort.Strings(names)

	parts := []string{}
	if snap.Stage != "" {
		parts = append(parts, "stage "+snap.Stage)
	}
	if len(names) > 0 {
		parts = append(parts, strings.Join(names, " "))
	}
	if len(parts) == 0 {
		return "early game opener"
	}
	return strings.Join(parts, " ")
}
