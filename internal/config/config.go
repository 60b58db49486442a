// Package config loads and validates the nekodeploy configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	deployerrors "git.home.luguber.info/inful/nekodeploy/internal/errors"
)

// Default endpoints for the Nekoweb hosting platform.
const (
	DefaultAPIURL  = "https://nekoweb.org/api"
	DefaultSiteURL = "https://nekoweb.org"
)

// Config represents the application configuration
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Auth    AuthConfig    `yaml:"auth"`
	API     APIConfig     `yaml:"api"`
	Output  OutputConfig  `yaml:"output"`
	History HistoryConfig `yaml:"history"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// SiteConfig describes the remote site being deployed to.
type SiteConfig struct {
	Name    string `yaml:"name,omitempty"`     // Display name used in logs
	Folder  string `yaml:"folder,omitempty"`   // Target folder/domain; resolved from site info when empty
	RSSPath string `yaml:"rss_path,omitempty"` // Relative path of the feed file to touch after deploy
}

// AuthConfig carries the two independent credential contexts.
// The API key drives the upload session endpoints; the session cookie is
// only needed for the CSRF-protected metadata side channel.
type AuthConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Cookie string `yaml:"cookie,omitempty"`
}

// APIConfig allows overriding the remote endpoints (used by tests).
type APIConfig struct {
	URL     string `yaml:"url,omitempty"`
	SiteURL string `yaml:"site_url,omitempty"`
}

// OutputConfig points at the finished build artifacts.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// HistoryConfig configures the local deployment journal.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"` // SQLite file; empty disables the journal
}

// DaemonConfig configures watch/scheduled deployment mode.
// Durations are strings in Go duration syntax ("2s", "5m").
type DaemonConfig struct {
	Watch       bool   `yaml:"watch,omitempty"`
	Interval    string `yaml:"interval,omitempty"`
	Debounce    string `yaml:"debounce,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// IntervalDuration parses the scheduled-deploy interval; zero means disabled.
func (d DaemonConfig) IntervalDuration() time.Duration {
	dur, err := time.ParseDuration(d.Interval)
	if err != nil || dur < 0 {
		return 0
	}
	return dur
}

// DebounceDuration parses the watch debounce window.
func (d DaemonConfig) DebounceDuration() time.Duration {
	dur, err := time.ParseDuration(d.Debounce)
	if err != nil || dur <= 0 {
		return 2 * time.Second
	}
	return dur
}

// NotifyConfig configures optional NATS deploy-event publishing.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// Environment variables consulted when the config file leaves credentials empty.
const (
	EnvAPIKey = "NEKOWEB_API_KEY"
	EnvCookie = "NEKOWEB_COOKIE"
)

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; credentials usually live there rather
	// than in the committed config file. Absence is not an error.
	_ = loadEnvFile()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, deployerrors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath))
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryConfig, deployerrors.SeverityFatal, "failed to read config file")
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, deployerrors.Wrap(err, deployerrors.CategoryConfig, deployerrors.SeverityFatal, "failed to unmarshal config")
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills unset fields with their defaults and environment fallbacks.
func (c *Config) applyDefaults() {
	if c.Auth.APIKey == "" {
		c.Auth.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.Auth.Cookie == "" {
		c.Auth.Cookie = os.Getenv(EnvCookie)
	}
	if c.API.URL == "" {
		c.API.URL = DefaultAPIURL
	}
	if c.API.SiteURL == "" {
		c.API.SiteURL = DefaultSiteURL
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./dist"
	}
	if c.Daemon.Debounce == "" {
		c.Daemon.Debounce = "2s"
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "nekodeploy.deployments"
	}
}

// Validate checks that the configuration can drive a deployment.
// The target folder may be empty here; it is resolved from site info during
// the validate stage when omitted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.APIKey) == "" {
		return deployerrors.ConfigError("missing API key: set auth.api_key or " + EnvAPIKey)
	}
	if strings.TrimSpace(c.Output.Directory) == "" {
		return deployerrors.ConfigError("missing output.directory")
	}
	if c.Site.RSSPath != "" && strings.HasPrefix(c.Site.RSSPath, "/") {
		return deployerrors.ConfigError("site.rss_path must be relative to the site root")
	}
	if c.Daemon.Interval != "" {
		if _, err := time.ParseDuration(c.Daemon.Interval); err != nil {
			return deployerrors.ConfigError(fmt.Sprintf("invalid daemon.interval: %v", err))
		}
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return deployerrors.ConfigError("notify.enabled requires notify.url")
	}
	return nil
}

// loadEnvFile loads environment variables from .env/.env.local files.
// It attempts each supported filename in order and stops at the first
// successfully parsed file. Existing process variables are not overwritten.
func loadEnvFile() error {
	envPaths := []string{".env", ".env.local"}
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no .env file found")
}
