// Package reason turns game-state snapshots into spoken-quality coaching
// advice through an LLM provider. The gateway owns prompt assembly, optional
// knowledge retrieval, and per-request timeouts; providers are swappable
// behind the Client interface.
package reason

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zkH2O/tftcoach/internal/logging"
	"github.com/zkH2O/tftcoach/internal/retrieval"
	"github.com/zkH2O/tftcoach/internal/state"
)

// Client is a minimal LLM completion surface.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f ClientFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// Advice is one completed reasoning pass.
type Advice struct {
	ID              string
	Text            string
	SnapshotVersion uint64
	Elapsed         time.Duration
	CreatedAt       time.Time
}

// Gateway drives one reasoning pass at a time. The scheduler enforces the
// single-flight discipline; the gateway only knows how to run one request.
type Gateway struct {
	client    Client
	retriever *retrieval.Client // optional
	timeout   time.Duration
}

// NewGateway builds a gateway. retriever may be nil; requests then run
// without knowledge context.
func NewGateway(client Client, retriever *retrieval.Client, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{client: client, retriever: retriever, timeout: timeout}
}

// Advise runs one reasoning pass over the snapshot. Retrieval failures
// degrade to an uncontextualized prompt rather than failing the pass.
func (g *Gateway) Advise(ctx context.Context, snap *state.Snapshot) (*Advice, error) {
	if snap == nil {
		return nil, fmt.Errorf("no snapshot to reason about")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	timer := logging.StartTimer(logging.CategoryReasoning, fmt.Sprintf("advise v%d", snap.Version))
	defer timer.Stop()

	var docs []string
	if g.retriever != nil {
		var err error
		docs, err = g.retriever.Query(ctx, retrievalQuery(snap), 3)
		if err != nil {
			logging.Retrieval("context lookup failed, advising without it: %v", err)
			docs = nil
		}
	}

	text, err := g.client.Complete(ctx, systemPrompt, userPrompt(snap, docs))
	if err != nil {
		return nil, fmt.Errorf("reasoning pass for v%d: %w", snap.Version, err)
	}

	advice := &Advice{
		ID:              uuid.NewString(),
		Text:            text,
		SnapshotVersion: snap.Version,
		Elapsed:         time.Since(start),
		CreatedAt:       time.Now(),
	}
	logging.Reasoning("advice %s for v%d in %v", advice.ID, snap.Version, advice.Elapsed)
	return advice, nil
}
