package reason

import (
	"context"
	"fmt"

	"github.com/zkH2O/tftcoach/internal/config"
)

// NewClient builds the provider named in the config.
func NewClient(ctx context.Context, cfg config.ReasoningConfig) (Client, error) {
	timeout := config.Duration(cfg.Timeout, 0)
	switch cfg.Provider {
	case "genai", "gemini", "":
		return NewGenAIClient(ctx, cfg.APIKey, cfg.Model)
	case "zai":
		return NewZAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, timeout), nil
	default:
		return nil, fmt.Errorf("unknown reasoning provider: %q", cfg.Provider)
	}
}
