package reason

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ZAIClient completes prompts through Z.AI's OpenAI-compatible chat API.
type ZAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type zaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type zaiRequest struct {
	Model       string       `json:"model"`
	Messages    []zaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

type zaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewZAIClient creates a Z.AI-backed client.
func NewZAIClient(apiKey, baseURL, model string, timeout time.Duration) *ZAIClient {
	if baseURL == "" {
		baseURL = "https://api.z.ai/api/paas/v4"
	}
	if model == "" {
		model = "glm-4.7"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ZAIClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete implements Client.
func (c *ZAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	messages := []zaiMessage{}
	if systemPrompt != "" {
		messages = append(messages, zaiMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, zaiMessage{Role: "user", Content: userPrompt})

	jsonData, err := json.Marshal(zaiRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var zr zaiResponse
	if err := json.Unmarshal(body, &zr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if zr.Error != nil {
		return "", fmt.Errorf("API error: %s", zr.Error.Message)
	}
	if len(zr.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(zr.Choices[0].Message.Content), nil
}
