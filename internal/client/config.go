package client

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the client's environment configuration.
type Config struct {
	BaseURL    string        `env:"STUDYGATE_URL"         envDefault:"http://localhost:8080"`
	Token      string        `env:"STUDYGATE_TOKEN"`
	Timeout    time.Duration `env:"STUDYGATE_TIMEOUT"     envDefault:"30s"`
	MaxRetries int           `env:"STUDYGATE_MAX_RETRIES" envDefault:"2"`
}

// LoadConfig reads the client configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return cfg, nil
}

// Policy returns the default retry policy with the configured retry count.
// A negative count disables retries.
func (c *Config) Policy() RetryPolicy {
	p := DefaultRetryPolicy()
	if c.MaxRetries < 0 {
		p.Enabled = false
		return p
	}
	p.MaxRetries = c.MaxRetries
	return p
}
