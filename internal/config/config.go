package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SubstrateWsURL string       `yaml:"substrate_ws_url"`
	ErrorInterval  uint64       `yaml:"error_interval"` // minutes
	Stashes        []string     `yaml:"stashes"`
	Hooks          HooksConfig  `yaml:"hooks"`
	Matrix         MatrixConfig `yaml:"matrix"`
	Log            LogConfig    `yaml:"log"`
	Status         StatusConfig `yaml:"status"`
	LockFile       string       `yaml:"lock_file"`
}

type HooksConfig struct {
	NewSession      string `yaml:"new_session"`
	ActiveNextEra   string `yaml:"active_next_era"`
	InactiveNextEra string `yaml:"inactive_next_era"`
}

type MatrixConfig struct {
	Disabled   bool   `yaml:"disabled"`
	Homeserver string `yaml:"homeserver"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Room       string `yaml:"room"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

func defaultConfig() *Config {
	return &Config{
		SubstrateWsURL: "ws://127.0.0.1:9944",
		ErrorInterval:  30,
		Matrix: MatrixConfig{
			Homeserver: "https://matrix.org",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		LockFile: filepath.Join(os.TempDir(), "skipper.lock"),
	}
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return *defaultConfig()
}

// Load reads the yaml file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return *cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return *cfg, nil
}

// Validate reports the first setting that would keep the agent from running.
func (c Config) Validate() error {
	if c.SubstrateWsURL == "" {
		return errors.New("substrate_ws_url is required")
	}
	u, err := url.Parse(c.SubstrateWsURL)
	if err != nil {
		return fmt.Errorf("substrate_ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("substrate_ws_url: unsupported scheme %q (want ws or wss)", u.Scheme)
	}
	if c.ErrorInterval == 0 {
		return errors.New("error_interval must be at least 1 minute")
	}
	if c.ErrorInterval > maxErrorInterval {
		return fmt.Errorf("error_interval must be at most %d minutes", maxErrorInterval)
	}
	if !c.Matrix.Disabled {
		if c.Matrix.Homeserver == "" {
			return errors.New("matrix.homeserver is required unless matrix.disabled is set")
		}
		if c.Matrix.User == "" || c.Matrix.Room == "" {
			return errors.New("matrix.user and matrix.room are required unless matrix.disabled is set")
		}
	}
	return nil
}

// maxErrorInterval is the longest interval Cooldown can express.
const maxErrorInterval = math.MaxInt64 / uint64(time.Minute)

// Cooldown is the wait after an unexpected error before reconnecting.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.ErrorInterval) * time.Minute
}
