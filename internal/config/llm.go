package config

import (
	"os"
	"time"
)

// LLMConfig configures the optional OpenAI-compatible slide labeler.
type LLMConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	APIKeyEnv  string        `mapstructure:"api_key_env"`  // Environment variable name for API key
	BaseURL    string        `mapstructure:"base_url"`
	BaseURLEnv string        `mapstructure:"base_url_env"` // Environment variable name for base URL
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ResolveEnvVars loads APIKey and BaseURL from the named environment
// variables when they are not set directly.
func (c *LLMConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		if val := os.Getenv(c.BaseURLEnv); val != "" {
			c.BaseURL = val
		}
	}
}

// Usable reports whether the labeler is enabled and has credentials.
func (c *LLMConfig) Usable() bool {
	return c.Enabled && c.APIKey != "" && c.BaseURL != ""
}
