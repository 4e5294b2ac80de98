package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"
)

// HTTPModel talks to a local inference server exposing the generic class
// vocabulary over a small JSON API. Any model family works as long as it
// honors the contract.
type HTTPModel struct {
	endpoint string
	client   *http.Client
}

// NewHTTPModel creates an inference-endpoint client.
func NewHTTPModel(endpoint string, timeout time.Duration) *HTTPModel {
	if endpoint == "" {
		endpoint = "http://localhost:8090"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPModel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Image string `json:"image"` // base64 PNG
}

type detectResponse struct {
	Detections []wireDetection `json:"detections"`
}

type wireDetection struct {
	Class      string  `json:"class"`
	Box        [4]int  `json:"box"` // x0, y0, x1, y1
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text,omitempty"`
}

// Detect posts the frame and decodes the detections.
func (m *HTTPModel) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	body, err := json.Marshal(detectRequest{
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]Detection, 0, len(decoded.Detections))
	for _, w := range decoded.Detections {
		out = append(out, Detection{
			Class:      Class(w.Class),
			Box:        image.Rect(w.Box[0], w.Box[1], w.Box[2], w.Box[3]),
			Confidence: w.Confidence,
			Text:       w.Text,
		})
	}
	return out, nil
}
