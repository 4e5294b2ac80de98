package config

import "os"

// applyEnvOverrides layers environment variables over the loaded config.
// API keys take precedence over file values; the provider is only switched
// when the key for that provider is present.
func (c *Config) applyEnvOverrides() {
	// Reasoning provider keys. GEMINI_API_KEY wins over ZAI_API_KEY so a
	// locally exported Gemini key is honored even when a zai key lingers.
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.Reasoning.APIKey = key
		c.Reasoning.Provider = "zai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Reasoning.APIKey = key
		c.Reasoning.Provider = "genai"
	}

	if v := os.Getenv("TFTCOACH_CORPUS_DIR"); v != "" {
		c.Identify.CorpusDir = v
	}
	if v := os.Getenv("TFTCOACH_SET_TAG"); v != "" {
		c.Identify.SetTag = v
	}
	if v := os.Getenv("TFTCOACH_DETECTOR_ENDPOINT"); v != "" {
		c.Detector.Endpoint = v
	}
	if v := os.Getenv("TFTCOACH_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
}
