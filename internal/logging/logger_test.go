package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	CloseAll()
	optsMu.Lock()
	opts = Options{}
	optsMu.Unlock()
}

func TestInitialize_NoopWithoutDebugMode(t *testing.T) {
	t.Cleanup(reset)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Options{DebugMode: false}))
	Capture("should not be written")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInitialize_WritesCategoryFiles(t *testing.T) {
	t.Cleanup(reset)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Options{DebugMode: true, Level: "debug"}))
	Capture("frame %d captured", 7)
	CloseAll()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var captureLog string
	for _, e := range entries {
		if strings.Contains(e.Name(), "capture") {
			captureLog = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, captureLog, "expected a capture log file")

	data, err := os.ReadFile(captureLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "frame 7 captured")
}

func TestCategoryFilter(t *testing.T) {
	t.Cleanup(reset)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"scout": false},
	}))

	assert.False(t, IsCategoryEnabled(CategoryScout))
	assert.True(t, IsCategoryEnabled(CategoryCapture))

	Scout("suppressed")
	CloseAll()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "scout")
	}
}

func TestLevelGate(t *testing.T) {
	t.Cleanup(reset)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Options{DebugMode: true, Level: "warn"}))

	l := Get(CategoryState)
	l.Debug("below the gate")
	l.Info("below the gate")
	l.Warn("above the gate")
	CloseAll()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var stateLog string
	for _, e := range entries {
		if strings.Contains(e.Name(), "state") {
			stateLog = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, stateLog, "expected a state log file")

	data, err := os.ReadFile(stateLog)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "below the gate")
	assert.Contains(t, string(data), "above the gate")
}
