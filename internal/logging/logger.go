// Package logging provides config-driven categorized file-based logging for
// tftcoach. Logs are written to the configured log directory with separate
// files per category. When debug mode is off, nothing is written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and shutdown
	CategoryCapture   Category = "capture"   // Frame acquisition
	CategoryDetect    Category = "detect"    // Object detection
	CategoryIdentify  Category = "identify"  // Fingerprint identity resolution
	CategoryManifest  Category = "manifest"  // Asset manifest builds and reloads
	CategoryState     Category = "state"     // State aggregation and publishing
	CategoryScheduler Category = "scheduler" // Trigger cadences
	CategoryScout     Category = "scout"     // Scout action emission
	CategoryReasoning Category = "reasoning" // Reasoning boundary calls
	CategoryRetrieval Category = "retrieval" // Knowledge retrieval calls
	CategoryAudio     Category = "audio"     // TTS sink
	CategoryAssets    Category = "assets"    // CDragon asset updates
	CategoryLive      Category = "live"      // Live-session query polling
)

// Options mirrors the relevant parts of config.LoggingConfig to avoid a
// dependency on the config package.
type Options struct {
	DebugMode  bool
	Level      string // debug, info, warn, error
	Categories map[string]bool
	JSONFormat bool
}

// StructuredLogEntry is the JSON form of a log line.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory. Should be called once at startup.
// A no-op when debug mode is disabled.
func Initialize(dir string, o Options) error {
	optsMu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	optsMu.Unlock()

	if !o.DebugMode {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("log directory required in debug mode")
	}

	logsDir = dir
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== tftcoach logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", o.Level)

	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix for easy rotation.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

func (l *Logger) write(level int, tag, msg string) {
	if l.logger == nil || logLevel > level {
		return
	}
	optsMu.RLock()
	jsonFormat := opts.JSONFormat
	optsMu.RUnlock()
	if jsonFormat {
		l.logJSON(tag, msg)
	} else {
		l.logger.Printf("[%s] %s", tag, msg)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", fmt.Sprintf(format, args...))
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
	logsDir = ""
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Capture logs to the capture category.
func Capture(format string, args ...interface{}) {
	Get(CategoryCapture).Info(format, args...)
}

// CaptureDebug logs debug to the capture category.
func CaptureDebug(format string, args ...interface{}) {
	Get(CategoryCapture).Debug(format, args...)
}

// Detect logs to the detect category.
func Detect(format string, args ...interface{}) {
	Get(CategoryDetect).Info(format, args...)
}

// DetectDebug logs debug to the detect category.
func DetectDebug(format string, args ...interface{}) {
	Get(CategoryDetect).Debug(format, args...)
}

// Identify logs to the identify category.
func Identify(format string, args ...interface{}) {
	Get(CategoryIdentify).Info(format, args...)
}

// IdentifyDebug logs debug to the identify category.
func IdentifyDebug(format string, args ...interface{}) {
	Get(CategoryIdentify).Debug(format, args...)
}

// Manifest logs to the manifest category.
func Manifest(format string, args ...interface{}) {
	Get(CategoryManifest).Info(format, args...)
}

// State logs to the state category.
func State(format string, args ...interface{}) {
	Get(CategoryState).Info(format, args...)
}

// StateDebug logs debug to the state category.
func StateDebug(format string, args ...interface{}) {
	Get(CategoryState).Debug(format, args...)
}

// Scheduler logs to the scheduler category.
func Scheduler(format string, args ...interface{}) {
	Get(CategoryScheduler).Info(format, args...)
}

// SchedulerDebug logs debug to the scheduler category.
func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debug(format, args...)
}

// Scout logs to the scout category.
func Scout(format string, args ...interface{}) {
	Get(CategoryScout).Info(format, args...)
}

// ScoutDebug logs debug to the scout category.
func ScoutDebug(format string, args ...interface{}) {
	Get(CategoryScout).Debug(format, args...)
}

// Reasoning logs to the reasoning category.
func Reasoning(format string, args ...interface{}) {
	Get(CategoryReasoning).Info(format, args...)
}

// ReasoningDebug logs debug to the reasoning category.
func ReasoningDebug(format string, args ...interface{}) {
	Get(CategoryReasoning).Debug(format, args...)
}

// Retrieval logs to the retrieval category.
func Retrieval(format string, args ...interface{}) {
	Get(CategoryRetrieval).Info(format, args...)
}

// Audio logs to the audio category.
func Audio(format string, args ...interface{}) {
	Get(CategoryAudio).Info(format, args...)
}

// Assets logs to the assets category.
func Assets(format string, args ...interface{}) {
	Get(CategoryAssets).Info(format, args...)
}

// Live logs to the live category.
func Live(format string, args ...interface{}) {
	Get(CategoryLive).Info(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
