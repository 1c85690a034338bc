package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoloop/echoloop"
	"github.com/echoloop/echoloop/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, echoloop.DefaultReadBufferCap, cfg.ReadBufferCap)
	assert.True(t, cfg.RecoverAcceptErrors)
	assert.Equal(t, -1, cfg.Socket.Linger)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echoloop.yaml")
	data := []byte(`
address: tcp://0.0.0.0:7000
readBufferCap: 4096
table:
  initialCap: 64
  growthStep: 16
  maxCap: 128
socket:
  noDelay: true
  keepAlive: 30s
  reusePort: true
  linger: 0
log:
  level: warn
  file: /tmp/echoloop.log
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://0.0.0.0:7000", cfg.Address)
	assert.Equal(t, 4096, cfg.ReadBufferCap)
	assert.Equal(t, TableConfig{InitialCap: 64, GrowthStep: 16, MaxCap: 128}, cfg.Table)
	assert.True(t, cfg.Socket.NoDelay)
	assert.True(t, cfg.Socket.ReusePort)
	assert.False(t, cfg.Socket.ReuseAddr)
	assert.Equal(t, 0, cfg.Socket.Linger)
	assert.Equal(t, "warn", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.True(t, cfg.RecoverAcceptErrors)

	keepAlive, err := cfg.keepAlive()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, keepAlive)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 15)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "address: [unterminated"},
		{"empty address", `address: ""`},
		{"zero buffer", "readBufferCap: 0"},
		{"negative growth", "table: {growthStep: -1}"},
		{"max below initial", "table: {initialCap: 10, maxCap: 5}"},
		{"negative socket buffer", "socket: {recvBuffer: -1}"},
		{"bad keepalive", "socket: {keepAlive: soon}"},
		{"negative keepalive", "socket: {keepAlive: -1s}"},
		{"bad level", "log: {level: loud}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestParseNumericLevel(t *testing.T) {
	cfg, err := Parse([]byte(`log: {level: "-1"}`))
	require.NoError(t, err)
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 14)
}
