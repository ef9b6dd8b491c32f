package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dealguard/dealguard/internal/errors"
)

const validYAML = `
version: "1"
server:
  host: 0.0.0.0
  http_port: 9000
hubspot:
  client_id: cid
  client_secret: secret
  redirect_url: https://api.example.com/oauth/hubspot/callback
  state_secret: test-secret
storage:
  path: ./data/test.db
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "https://api.hubapi.com", cfg.HubSpot.APIBaseURL)
	assert.Equal(t, []string{"crm.objects.deals.read"}, cfg.HubSpot.Scopes)
	assert.Equal(t, 100, cfg.Sync.PageLimit)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Sync.TokenSkew)
	assert.Equal(t, "X-User-ID", cfg.API.Auth.UserHeader)
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [not a map"))
	require.Error(t, err)

	var parseErr *apperrors.ErrConfigParse
	assert.ErrorAs(t, err, &parseErr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"huge port", func(c *Config) { c.Server.HTTPPort = 70000 }},
		{"missing state secret", func(c *Config) { c.HubSpot.StateSecret = "" }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"page limit over cap", func(c *Config) { c.Sync.PageLimit = 250 }},
		{"batch size over cap", func(c *Config) { c.Sync.BatchSize = 101 }},
		{"negative retries", func(c *Config) { c.Sync.MaxRetries = -1 }},
		{"bad api base url", func(c *Config) { c.HubSpot.APIBaseURL = "ftp://x" }},
		{"telegram enabled without token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.Token = ""
		}},
		{"tls without cert", func(c *Config) { c.Server.TLS.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := loader.Load()

	var notFound *apperrors.ErrConfigNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestLoaderEnvSubstitution(t *testing.T) {
	t.Setenv("DEALGUARD_TEST_SECRET", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := validYAML + "\napi:\n  auth:\n    api_keys: [\"${DEALGUARD_TEST_SECRET}\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"from-env"}, cfg.API.Auth.APIKeys)
	assert.Same(t, cfg, loader.Get())
}

func TestLoaderWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	reloaded := make(chan *Config, 1)
	loader.SetOnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, loader.StartWatcher())
	defer loader.StopWatcher()

	updated := validYAML + "\nsync:\n  page_limit: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 25, cfg.Sync.PageLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload config")
	}
}
