package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tftcoach configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Perception pipeline
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Identify IdentifyConfig `yaml:"identify"`
	State    StateConfig    `yaml:"state"`

	// Action and reasoning cadences
	Scout     ScoutConfig     `yaml:"scout"`
	Reasoning ReasoningConfig `yaml:"reasoning"`

	// External boundaries
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Audio     AudioConfig     `yaml:"audio"`
	Live      LiveConfig      `yaml:"live"`

	// Asset corpus maintenance
	Assets AssetsConfig `yaml:"assets"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig configures the frame source.
type CaptureConfig struct {
	// Period between captures, e.g. "1s". If a grab overruns the period the
	// next capture is issued immediately after it completes.
	Period string `yaml:"period"`

	// Command that writes one PNG screenshot to stdout (the capture device
	// boundary). Example: ["grim", "-"] or ["import", "-window", "root", "png:-"].
	GrabCommand []string `yaml:"grab_command"`

	// GrabTimeout bounds a single capture, e.g. "3s".
	GrabTimeout string `yaml:"grab_timeout"`

	// MaxConsecutiveFailures before the source is declared exhausted.
	// Zero disables the limit.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// DetectorConfig configures the object-detection model boundary.
type DetectorConfig struct {
	Endpoint        string  `yaml:"endpoint"` // HTTP inference endpoint
	Timeout         string  `yaml:"timeout"`
	ConfidenceFloor float64 `yaml:"confidence_floor"` // detections below this are dropped
}

// IdentifyConfig configures fingerprint identity resolution.
type IdentifyConfig struct {
	CorpusDir string `yaml:"corpus_dir"` // canonical entity images, one subdir per set tag
	SetTag    string `yaml:"set_tag"`    // active set, e.g. "set16"

	// MatchThreshold is the minimum cosine similarity for a positive
	// identification; below it the resolver reports "unknown".
	MatchThreshold float64 `yaml:"match_threshold"`

	CachePath   string `yaml:"cache_path"`   // built-manifest cache database
	WatchCorpus bool   `yaml:"watch_corpus"` // hot-reload the manifest on corpus changes
}

// StateConfig configures the state aggregator.
type StateConfig struct {
	// DebounceFrames is the number of consecutive confirming observations
	// required before a field change (or clearance) is committed.
	DebounceFrames int `yaml:"debounce_frames"`
}

// ScoutConfig configures the periodic scout action.
type ScoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Period  string `yaml:"period"` // e.g. "30s"

	// DispatchCommand is the single permitted input event, e.g.
	// ["xdotool", "key", "d"]. Never a pointer movement.
	DispatchCommand []string `yaml:"dispatch_command"`
	// DispatchTimeout bounds one dispatch run; a hung command is killed so
	// it cannot suppress every later scout.
	DispatchTimeout string `yaml:"dispatch_timeout"`

	// Jittered dispatch delay, sampled from a Gaussian and clamped at zero.
	DelayMean   string `yaml:"delay_mean"`
	DelayStddev string `yaml:"delay_stddev"`
}

// ReasoningConfig configures the reasoning boundary.
type ReasoningConfig struct {
	Provider string `yaml:"provider"` // genai, zai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// RetrievalConfig configures the knowledge-retrieval boundary.
type RetrievalConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	TopK    int    `yaml:"top_k"`
}

// AudioConfig configures the text-to-speech sink.
type AudioConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	Voice   string `yaml:"voice"`
}

// LiveConfig configures the read-only live-session query endpoint.
type LiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Period  string `yaml:"period"`
	Timeout string `yaml:"timeout"`
}

// AssetsConfig configures the CDragon asset updater.
type AssetsConfig struct {
	CDragonURL string `yaml:"cdragon_url"`
	IconBase   string `yaml:"icon_base"`
	SetNumber  int    `yaml:"set_number"`
	StaticPath string `yaml:"static_path"` // scraped static reference JSON
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Dir        string          `yaml:"dir"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tftcoach",
		Version: "0.3.0",

		Capture: CaptureConfig{
			Period:                 "1s",
			GrabCommand:            []string{"grim", "-"},
			GrabTimeout:            "3s",
			MaxConsecutiveFailures: 30,
		},

		Detector: DetectorConfig{
			Endpoint:        "http://localhost:8090",
			Timeout:         "2s",
			ConfidenceFloor: 0.40,
		},

		Identify: IdentifyConfig{
			CorpusDir:      "data/corpus",
			SetTag:         "set16",
			MatchThreshold: 0.92,
			CachePath:      "data/manifest.db",
			WatchCorpus:    true,
		},

		State: StateConfig{
			DebounceFrames: 2,
		},

		Scout: ScoutConfig{
			Enabled:         true,
			Period:          "30s",
			DispatchCommand: []string{"xdotool", "key", "d"},
			DispatchTimeout: "2s",
			DelayMean:       "200ms",
			DelayStddev:     "50ms",
		},

		Reasoning: ReasoningConfig{
			Provider: "genai",
			Model:    "gemini-2.5-flash",
			Timeout:  "60s",
		},

		Retrieval: RetrievalConfig{
			Enabled: false,
			BaseURL: "http://localhost:8091",
			Timeout: "10s",
			TopK:    4,
		},

		Audio: AudioConfig{
			Enabled: false,
			BaseURL: "http://localhost:8092",
			Timeout: "30s",
			Voice:   "default",
		},

		Live: LiveConfig{
			Enabled: false,
			BaseURL: "https://127.0.0.1:2999",
			Period:  "5s",
			Timeout: "2s",
		},

		Assets: AssetsConfig{
			CDragonURL: "https://raw.communitydragon.org/latest/cdragon/tft/en_us.json",
			IconBase:   "https://raw.communitydragon.org/latest/game",
			SetNumber:  16,
			StaticPath: "data/tft_static_ref.json",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			Dir:       "data/logs",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Duration parses a config duration string, falling back to def when the
// value is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
