package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
substrate_ws_url: "wss://rpc.polkadot.io"
error_interval: 5
stashes:
  - "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"
hooks:
  new_session: "/opt/skipper/hooks/new_session.sh"
matrix:
  user: "@skipper:matrix.org"
  password: "secret"
  room: "!abc:matrix.org"
status:
  addr: "127.0.0.1:9615"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "wss://rpc.polkadot.io", cfg.SubstrateWsURL)
	assert.Equal(t, uint64(5), cfg.ErrorInterval)
	assert.Equal(t, []string{"15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"}, cfg.Stashes)
	assert.Equal(t, "/opt/skipper/hooks/new_session.sh", cfg.Hooks.NewSession)
	assert.Empty(t, cfg.Hooks.ActiveNextEra)
	assert.Equal(t, "@skipper:matrix.org", cfg.Matrix.User)
	assert.Equal(t, "127.0.0.1:9615", cfg.Status.Addr)

	// Defaults survive for fields the file leaves out.
	assert.Equal(t, "https://matrix.org", cfg.Matrix.Homeserver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NotEmpty(t, cfg.LockFile)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "ws://127.0.0.1:9944", cfg.SubstrateWsURL)
	assert.Equal(t, uint64(30), cfg.ErrorInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("error_interval: [1, 2"), 0644))

	_, err := Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfgPath)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Matrix.User = "@skipper:matrix.org"
	valid.Matrix.Room = "!abc:matrix.org"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults with matrix identity", func(c *Config) {}, ""},
		{"empty url", func(c *Config) { c.SubstrateWsURL = "" }, "substrate_ws_url is required"},
		{"http scheme", func(c *Config) { c.SubstrateWsURL = "http://localhost:9933" }, "unsupported scheme"},
		{"wss scheme", func(c *Config) { c.SubstrateWsURL = "wss://rpc.polkadot.io" }, ""},
		{"zero interval", func(c *Config) { c.ErrorInterval = 0 }, "error_interval"},
		{"interval overflowing a duration", func(c *Config) { c.ErrorInterval = 1 << 62 }, "error_interval must be at most"},
		{"largest interval", func(c *Config) { c.ErrorInterval = maxErrorInterval }, ""},
		{"matrix without room", func(c *Config) { c.Matrix.Room = "" }, "matrix.user and matrix.room"},
		{"matrix disabled without identity", func(c *Config) {
			c.Matrix = MatrixConfig{Disabled: true}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCooldown(t *testing.T) {
	cfg := Default()
	cfg.ErrorInterval = 5
	assert.Equal(t, 5*time.Minute, cfg.Cooldown())

	cfg.ErrorInterval = maxErrorInterval
	assert.Greater(t, int64(cfg.Cooldown()), int64(0))
}
