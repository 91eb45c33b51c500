package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent wavetap configuration stored as
// config.toml in the .wavetap/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int        `toml:"version"`
	API     APIConfig  `toml:"api"`
	Auth    AuthConfig `toml:"auth"`
	Tail    TailConfig `toml:"tail"`
}

// APIConfig holds the telemetry API settings.
type APIConfig struct {
	URL string `toml:"url,omitempty"`
}

// AuthConfig holds the authorization endpoint settings. The client
// id/secret pair lives in credentials.toml, not here.
type AuthConfig struct {
	TokenURL string `toml:"token_url,omitempty"`
	Audience string `toml:"audience,omitempty"`
}

// TailConfig holds settings for the merged dual-feed tail.
type TailConfig struct {
	// WindowSeconds is the aggregation window that catches the initial
	// burst of historical matches before the sort pass.
	WindowSeconds uint `toml:"window_seconds,omitempty"`

	// QueueSize is the capacity of the shared relay channel between
	// the two feed pipelines and the output drain.
	QueueSize uint `toml:"queue_size,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.url": {
		get: func(c *Config) string { return c.API.URL },
		set: func(c *Config, v string) error { c.API.URL = v; return nil },
	},
	"auth.token_url": {
		get: func(c *Config) string { return c.Auth.TokenURL },
		set: func(c *Config, v string) error { c.Auth.TokenURL = v; return nil },
	},
	"auth.audience": {
		get: func(c *Config) string { return c.Auth.Audience },
		set: func(c *Config, v string) error { c.Auth.Audience = v; return nil },
	},
	"tail.window_seconds": {
		get: func(c *Config) string {
			if c.Tail.WindowSeconds == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Tail.WindowSeconds), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for tail.window_seconds: %w", err)
			}
			c.Tail.WindowSeconds = uint(n)
			return nil
		},
	},
	"tail.queue_size": {
		get: func(c *Config) string {
			if c.Tail.QueueSize == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Tail.QueueSize), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for tail.queue_size: %w", err)
			}
			c.Tail.QueueSize = uint(n)
			return nil
		},
	},
}
