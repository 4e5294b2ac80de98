// Package audio delivers advice text to a local text-to-speech service.
// Speech is fire-and-forget: if the sink is busy the new utterance is
// dropped, never queued, so advice is always about the present board.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/zkH2O/tftcoach/internal/logging"
)

// ErrBusy is returned when an utterance is still playing.
var ErrBusy = errors.New("speaker busy: utterance in progress")

// Speaker posts utterances to a TTS HTTP endpoint.
type Speaker struct {
	baseURL    string
	voice      string
	httpClient *http.Client

	mu   sync.Mutex
	busy bool
}

type speakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// NewSpeaker creates a speaker for the given TTS endpoint.
func NewSpeaker(baseURL, voice string, timeout time.Duration) *Speaker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Speaker{
		baseURL:    baseURL,
		voice:      voice,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Say speaks the text asynchronously. Returns ErrBusy without queuing if a
// previous utterance has not finished.
func (s *Speaker) Say(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		logging.Audio("dropped utterance: previous one still playing")
		return ErrBusy
	}
	s.busy = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()
		if err := s.speak(ctx, text); err != nil {
			logging.Audio("utterance failed: %v", err)
		}
	}()
	return nil
}

// speak blocks until the service has finished the utterance. The service
// holds the request open while audio plays, which is what makes the busy
// flag meaningful.
func (s *Speaker) speak(ctx context.Context, text string) error {
	jsonData, err := json.Marshal(speakRequest{Text: text, Voice: s.voice})
	if err != nil {
		return fmt.Errorf("failed to marshal utterance: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/speak", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tts service returned status %d: %s", resp.StatusCode, body)
	}
	return nil
}
