// Package config loads the streamer configuration: YAML file first, then
// REGIONSTREAM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REGIONSTREAM_"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Watch   WatchConfig    `yaml:"watch"`
	Agent   AgentConfig    `yaml:"agent"`
	Regions []RegionConfig `yaml:"regions"`
	Feed    FeedConfig     `yaml:"feed"`
	Log     LogConfig      `yaml:"log"`
}

type WatchConfig struct {
	Path          string        `yaml:"path"`
	Interval      time.Duration `yaml:"interval"`
	Notify        bool          `yaml:"notify"`
	SkipIdentical bool          `yaml:"skip_identical"`
}

type AgentConfig struct {
	Mode          string  `yaml:"mode"`
	Object        string  `yaml:"object"`
	FixedAltitude float64 `yaml:"fixed_altitude"`
	// MetresPerUnit scales geodetic positions into scene units.
	MetresPerUnit float64 `yaml:"metres_per_unit"`
}

type RegionConfig struct {
	ID         string     `yaml:"id"`
	Bundle     string     `yaml:"bundle"`
	Collection string     `yaml:"collection"`
	Position   [3]float64 `yaml:"position"`
}

type FeedConfig struct {
	// Addr is the listen address; empty disables the feed.
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// overrides mirrors the environment surface. Empty strings and unset
// variables leave the file value alone.
type overrides struct {
	WatchPath     string         `env:"WATCH_PATH"`
	WatchInterval *time.Duration `env:"WATCH_INTERVAL"`
	WatchNotify   *bool          `env:"WATCH_NOTIFY"`
	FeedAddr      string         `env:"FEED_ADDR"`
	LogLevel      string         `env:"LOG_LEVEL"`
	AgentMode     string         `env:"AGENT_MODE"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() Config {
	return Config{
		Watch: WatchConfig{
			Path:     "agent_state.json",
			Interval: time.Second,
		},
		Agent: AgentConfig{
			Mode:          "follow",
			Object:        "UAV",
			FixedAltitude: 200,
			MetresPerUnit: 1,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Load reads path and applies the process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment; nil means the process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	dir := ""
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err = yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		dir = filepath.Dir(path)
	}

	if err := cfg.applyEnv(environ); err != nil {
		return cfg, err
	}
	cfg.Normalize(dir)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	var o overrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("%w: env: %w", ErrInvalid, err)
	}

	if o.WatchPath != "" {
		c.Watch.Path = o.WatchPath
	}
	if o.WatchInterval != nil {
		c.Watch.Interval = *o.WatchInterval
	}
	if o.WatchNotify != nil {
		c.Watch.Notify = *o.WatchNotify
	}
	if o.FeedAddr != "" {
		c.Feed.Addr = o.FeedAddr
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.AgentMode != "" {
		c.Agent.Mode = o.AgentMode
	}
	return nil
}

// Normalize upper-cases region ids and resolves relative paths against dir.
func (c *Config) Normalize(dir string) {
	c.Watch.Path = resolve(dir, strings.TrimSpace(c.Watch.Path))
	c.Agent.Mode = strings.ToLower(strings.TrimSpace(c.Agent.Mode))
	c.Agent.Object = strings.TrimSpace(c.Agent.Object)
	for i := range c.Regions {
		r := &c.Regions[i]
		r.ID = strings.ToUpper(strings.TrimSpace(r.ID))
		r.Bundle = resolve(dir, strings.TrimSpace(r.Bundle))
		r.Collection = strings.TrimSpace(r.Collection)
	}
}

func (c Config) Validate() error {
	if c.Watch.Path == "" {
		return fmt.Errorf("%w: watch.path is required", ErrInvalid)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("%w: watch.interval must be positive", ErrInvalid)
	}
	switch c.Agent.Mode {
	case "follow", "scroll":
	default:
		return fmt.Errorf("%w: agent.mode %q (want follow or scroll)", ErrInvalid, c.Agent.Mode)
	}
	if c.Agent.Object == "" {
		return fmt.Errorf("%w: agent.object is required", ErrInvalid)
	}
	if c.Agent.MetresPerUnit <= 0 {
		return fmt.Errorf("%w: agent.metres_per_unit must be positive", ErrInvalid)
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("%w: at least one region is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Regions))
	bundles := make(map[string]string, len(c.Regions))
	for i, r := range c.Regions {
		if r.ID == "" || r.Bundle == "" || r.Collection == "" {
			return fmt.Errorf("%w: regions[%d] needs id, bundle and collection", ErrInvalid, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate region %s", ErrInvalid, r.ID)
		}
		seen[r.ID] = struct{}{}
		if b, ok := bundles[r.Collection]; ok && b != r.Bundle {
			return fmt.Errorf("%w: collection %s comes from both %s and %s", ErrInvalid, r.Collection, b, r.Bundle)
		}
		bundles[r.Collection] = r.Bundle
	}
	return nil
}

func resolve(dir, p string) string {
	if p == "" || dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
