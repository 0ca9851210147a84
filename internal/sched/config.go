package sched

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yaml "github.com/goccy/go-yaml"
)

// ErrorPolicy decides what an unhandled task error does to the loop.
type ErrorPolicy string

const (
	// PolicyReport records the error on the task, emits a StatusError event and keeps running.
	PolicyReport ErrorPolicy = "report"
	// PolicyAbort makes Run return the first unhandled task error.
	PolicyAbort ErrorPolicy = "abort"
)

// ClockMode selects the loop's clock.
type ClockMode string

const (
	ClockReal    ClockMode = "real"
	ClockVirtual ClockMode = "virtual"
)

// Config mirrors loop.yml (or loop.toml).
type Config struct {
	Clock       ClockMode   `yaml:"clock" toml:"clock"`               // real (by default)
	ErrorPolicy ErrorPolicy `yaml:"error_policy" toml:"error_policy"` // report (by default)
	MaxPollMS   int         `yaml:"max_poll_ms" toml:"max_poll_ms"`   // 500 (by default)
	Verbose     bool        `yaml:"verbose" toml:"verbose"`           // include per-step events
	CSVPath     string      `yaml:"csv_path" toml:"csv_path"`         // empty = no CSV log
	TracePath   string      `yaml:"trace_path" toml:"trace_path"`     // empty = no msgpack trace
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		Clock:       ClockReal,
		ErrorPolicy: PolicyReport,
		MaxPollMS:   500,
	}
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config { return defaultConfig() }

// Load reads the config and overrides defaults; empty path = defaults only.
// Any problem reading the file also yields the defaults.
func Load(path string) Config {
	cfg, err := LoadFile(path)
	if err != nil {
		return defaultConfig()
	}
	return cfg
}

// LoadFile is Load but reports why the file could not be used.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return defaultConfig(), fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return defaultConfig(), fmt.Errorf("decode %s: %w", path, err)
		}
	}

	cfg.sanitize()
	return cfg, nil
}

// sanity clamps
func (c *Config) sanitize() {
	switch ClockMode(strings.ToLower(string(c.Clock))) {
	case ClockVirtual:
		c.Clock = ClockVirtual
	default:
		c.Clock = ClockReal
	}
	switch ErrorPolicy(strings.ToLower(string(c.ErrorPolicy))) {
	case PolicyAbort:
		c.ErrorPolicy = PolicyAbort
	default:
		c.ErrorPolicy = PolicyReport
	}
	if c.MaxPollMS < 0 {
		c.MaxPollMS = 0
	}
}

// maxPoll is the longest single blocking poll; zero means unbounded.
func (c Config) maxPoll() time.Duration {
	return time.Duration(c.MaxPollMS) * time.Millisecond
}
