package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Resolver.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Resolver.BackoffBase)
	assert.Equal(t, 8*time.Second, cfg.Resolver.AttemptTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Resolver.MinInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, "file", cfg.Cache.Manifest)
	assert.Equal(t, RoleLimits{Hook: 150, Body: 350, CTA: 180}, cfg.Validator.Limits)
	assert.Equal(t, []string{"pexels", "scrape"}, cfg.Sources.Priority["news"])
	assert.Equal(t, []string{"library"}, cfg.Sources.Priority["meme"])
	assert.Contains(t, cfg.Validator.DenyList, "without further ado")
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
cache:
  max_age: 48h
resolver:
  attempts: 2
  attempt_timeout: 5s
validator:
  limits:
    hook: 100
    body: 300
    cta: 120
sources:
  priority:
    news: [direct]
  direct:
    enabled: true
    urls:
      news: ["https://example.com/a.jpg"]
`))
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, 2, cfg.Resolver.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Resolver.AttemptTimeout)
	assert.Equal(t, 100, cfg.Validator.Limits.Hook)
	assert.Equal(t, []string{"direct"}, cfg.Sources.Priority["news"])
	assert.Equal(t, []string{"https://example.com/a.jpg"}, cfg.Sources.Direct.URLs["news"])
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("PEXELS_API_KEY", "px-secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, "classifier:\n  llm:\n    enabled: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "px-secret", cfg.Sources.Pexels.APIKey)
	assert.Equal(t, "sk-test", cfg.Classifier.LLM.APIKey)
	assert.True(t, cfg.Classifier.LLM.Usable())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad manifest", "cache:\n  manifest: redis\n"},
		{"zero workers", "resolver:\n  workers: 0\n"},
		{"zero attempts", "resolver:\n  attempts: 0\n"},
		{"negative limit", "validator:\n  limits:\n    body: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLLMResolveEnvVars(t *testing.T) {
	t.Setenv("MY_LLM_KEY", "k")
	c := LLMConfig{Enabled: true, APIKeyEnv: "MY_LLM_KEY", BaseURL: "http://x"}
	c.ResolveEnvVars()
	assert.Equal(t, "k", c.APIKey)
	assert.True(t, c.Usable())

	c = LLMConfig{APIKey: "direct", APIKeyEnv: "MY_LLM_KEY"}
	c.ResolveEnvVars()
	assert.Equal(t, "direct", c.APIKey)
}
