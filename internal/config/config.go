package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	HubSpot  HubSpotConfig  `yaml:"hubspot"`
	Storage  StorageConfig  `yaml:"storage"`
	Sync     SyncConfig     `yaml:"sync"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	// FrontendURL is where the OAuth callback redirects the browser after
	// completing (or failing) an authorization.
	FrontendURL string    `yaml:"frontend_url"`
	TLS         TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS settings.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains inbound API settings.
type APIConfig struct {
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
	// UserHeader names the header the fronting application sets to identify
	// the acting user on authenticated routes.
	UserHeader string `yaml:"user_header"`
}

// RateLimitConfig contains per-IP rate limiting settings.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// HubSpotConfig contains the OAuth app and remote API settings.
type HubSpotConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// RedirectURL is this service's callback endpoint as registered with
	// the OAuth app.
	RedirectURL string   `yaml:"redirect_url"`
	AuthBaseURL string   `yaml:"auth_base_url"`
	APIBaseURL  string   `yaml:"api_base_url"`
	Scopes      []string `yaml:"scopes"`
	// StateSecret signs the OAuth state parameter. Required.
	StateSecret string        `yaml:"state_secret"`
	StateTTL    time.Duration `yaml:"state_ttl"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StorageConfig contains local persistence settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig tunes the sync pipeline.
type SyncConfig struct {
	// PageLimit bounds how many deals one pass fetches from the CRM.
	PageLimit int `yaml:"page_limit"`
	// BatchSize is the per-call id cap on batch-read endpoints.
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	// TokenSkew is the safety margin subtracted from token expiry.
	TokenSkew time.Duration `yaml:"token_skew"`
}

// TelegramConfig contains operator notification settings.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in (0, 65535], got %d", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls requires cert_file and key_file when enabled")
		}
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.HubSpot.StateSecret == "" {
		return fmt.Errorf("hubspot.state_secret is required")
	}
	if !strings.HasPrefix(c.HubSpot.APIBaseURL, "http") {
		return fmt.Errorf("hubspot.api_base_url must be an http(s) URL, got %q", c.HubSpot.APIBaseURL)
	}
	if !strings.HasPrefix(c.HubSpot.AuthBaseURL, "http") {
		return fmt.Errorf("hubspot.auth_base_url must be an http(s) URL, got %q", c.HubSpot.AuthBaseURL)
	}
	if c.Sync.PageLimit <= 0 || c.Sync.PageLimit > 100 {
		return fmt.Errorf("sync.page_limit must be in (0, 100], got %d", c.Sync.PageLimit)
	}
	if c.Sync.BatchSize <= 0 || c.Sync.BatchSize > 100 {
		return fmt.Errorf("sync.batch_size must be in (0, 100], got %d", c.Sync.BatchSize)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required when telegram is enabled")
	}
	return nil
}

// applyDefaults fills zero values before YAML parsing.
func applyDefaults(c *Config) {
	c.Server.Host = "127.0.0.1"
	c.Server.HTTPPort = 8414
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.LogLevel = "info"
	c.API.Auth.HeaderName = "X-API-Key"
	c.API.Auth.UserHeader = "X-User-ID"
	c.API.RateLimit.RequestsPerMinute = 600
	c.API.RateLimit.Burst = 60
	c.HubSpot.AuthBaseURL = "https://app.hubspot.com"
	c.HubSpot.APIBaseURL = "https://api.hubapi.com"
	c.HubSpot.Scopes = []string{"crm.objects.deals.read"}
	c.HubSpot.StateTTL = 10 * time.Minute
	c.HubSpot.Timeout = 20 * time.Second
	c.Storage.Path = "./data/dealguard.db"
	c.Sync.PageLimit = 100
	c.Sync.BatchSize = 100
	c.Sync.MaxRetries = 3
	c.Sync.BaseDelay = time.Second
	c.Sync.TokenSkew = 60 * time.Second
}
