package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the journal CLI.
//
// Fields:
//   - ServerEndpointAddr: base URL of the backend HTTP API.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - DataDir: root directory for the local database and attachment files.
//   - AnthropicAPIKey: optional key for generated writing prompts.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	DataDir             string
	AnthropicAPIKey     string
}

// DatabasePath returns the SQLite file location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "daybook.db")
}

// AttachmentsDir returns the attachment file root under DataDir.
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.DataDir, "attachments")
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.OnlineCheckInterval = 3 * time.Second

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	c.DataDir = filepath.Join(home, ".daybook")
	c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
