package config

const (
	defaultAPIURL   = "https://network.wavetap.io/v1"
	defaultTokenURL = "https://network.wavetap.io/v1/token"
	defaultAudience = "https://network.wavetap.io/"

	defaultTailWindowSeconds = 2
	defaultTailQueueSize     = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			URL: defaultAPIURL,
		},
		Auth: AuthConfig{
			TokenURL: defaultTokenURL,
			Audience: defaultAudience,
		},
		Tail: TailConfig{
			WindowSeconds: defaultTailWindowSeconds,
			QueueSize:     defaultTailQueueSize,
		},
	}
}
