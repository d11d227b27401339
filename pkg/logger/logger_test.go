package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLoggerWritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pins.log")

	log, err := NewLogger(Config{Level: "debug", Format: "json", File: file})
	require.NoError(t, err)

	log.Info("pin scheduled")
	_ = log.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"pin scheduled"`)
}
