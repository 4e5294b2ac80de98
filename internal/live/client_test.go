package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkH2O/tftcoach/internal/state"
)

func liveServer(t *testing.T, level int, health float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/liveclientdata/activeplayer", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"level": level,
			"championStats": map[string]any{
				"currentHealth": health,
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ActivePlayer(t *testing.T) {
	// TLS server with a self-signed cert, like the real local endpoint.
	srv := liveServer(t, 8, 61.0)

	c := NewClient(srv.URL, time.Second)
	stats, err := c.ActivePlayer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PlayerStats{Level: 8, Health: 61}, stats)
}

func TestClient_ActivePlayerUnreachable(t *testing.T) {
	c := NewClient("https://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.ActivePlayer(context.Background())
	assert.Error(t, err)
}

func TestPoller_FeedsAggregator(t *testing.T) {
	srv := liveServer(t, 7, 80.0)
	agg := state.NewAggregator(1)
	p := NewPoller(NewClient(srv.URL, time.Second), agg, 10*time.Millisecond)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		s := agg.Current()
		return s.Level == 7 && s.Health == 80
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoller_SurvivesEndpointDown(t *testing.T) {
	agg := state.NewAggregator(1)
	p := NewPoller(NewClient("https://127.0.0.1:1", 50*time.Millisecond), agg, 10*time.Millisecond)

	p.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	p.Stop()

	// No observations made it through; the snapshot never advanced.
	assert.Equal(t, uint64(0), agg.Current().Version)
}
