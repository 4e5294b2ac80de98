// Package live reads the game client's local read-only data endpoint. It is
// a query-only boundary: nothing here ever sends input to the game. Values
// it reports supplement vision fields that OCR reads unreliably.
package live

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/zkH2O/tftcoach/internal/logging"
	"github.com/zkH2O/tftcoach/internal/state"
)

// PlayerStats is the subset of the active-player payload the coach uses.
type PlayerStats struct {
	Level  int
	Health int
}

// Client queries the local game endpoint. The endpoint serves a self-signed
// certificate, so verification is disabled for this one loopback host.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a live-data client for the local game endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

type activePlayerPayload struct {
	Level         int `json:"level"`
	ChampionStats struct {
		CurrentHealth float64 `json:"currentHealth"`
	} `json:"championStats"`
}

// ActivePlayer fetches the local player's level and health.
func (c *Client) ActivePlayer(ctx context.Context) (PlayerStats, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/liveclientdata/activeplayer", nil)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("live query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return PlayerStats{}, fmt.Errorf("live endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var payload activePlayerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return PlayerStats{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return PlayerStats{
		Level:  payload.Level,
		Health: int(payload.ChampionStats.CurrentHealth),
	}, nil
}

// Poller periodically feeds live stats into the aggregator.
type Poller struct {
	client *Client
	agg    *state.Aggregator
	period time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewPoller creates a poller; Start launches it.
func NewPoller(client *Client, agg *state.Aggregator, period time.Duration) *Poller {
	if period <= 0 {
		period = 5 * time.Second
	}
	return &Poller{
		client: client,
		agg:    agg,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the poll loop. Query failures are logged and skipped; the
// game endpoint only exists while a match is running.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := p.client.ActivePlayer(ctx)
				if err != nil {
					logging.Live("poll skipped: %v", err)
					continue
				}
				p.agg.ObserveScoped(state.Observation{
					"level":  strconv.Itoa(stats.Level),
					"health": strconv.Itoa(stats.Health),
				})
			}
		}
	}()
}

// Stop halts the poller and waits for the loop to exit.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}
