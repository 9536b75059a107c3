package anthropic

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
	defaultKeyEnv    = "ANTHROPIC_API_KEY"

	// defaultTimeout bounds the wait for response headers only; a streamed
	// investigation round may run longer.
	defaultTimeout = 2 * time.Minute
)

// Config is the engine.anthropic module configuration.
type Config struct {
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`

	// MaxTokens caps every completion. Decision rounds need room for the
	// full JSON decision.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature stays 0 unless configured so re-analysing an alert
	// reaches the same determination.
	Temperature float64 `yaml:"temperature"`

	// MaxRetries is passed to the SDK. The investigation loop itself never
	// retries a failed round.
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultKeyEnv
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("engine.anthropic: model must not be empty"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, errors.New("engine.anthropic: max_tokens must be positive"))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, errors.New("engine.anthropic: temperature must be between 0 and 1"))
	}
	if c.MaxRetries < 0 || c.Timeout < 0 {
		errs = append(errs, errors.New("engine.anthropic: max_retries and timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// apiKey returns the configured key, falling back to the environment.
func (c *Config) apiKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(c.APIKeyEnv)
}

// clientOptions translates the configuration into SDK request options.
func (c *Config) clientOptions() []option.RequestOption {
	opts := []option.RequestOption{
		option.WithMaxRetries(max(c.MaxRetries, 0)),
		option.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: c.Timeout,
			},
		}),
	}
	if key := c.apiKey(); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	return opts
}
