package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level sift configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	DataDir  string         `yaml:"data_dir"`
	Provider string         `yaml:"provider"`
	Model    string         `yaml:"model"`
	Browser  BrowserConfig  `yaml:"browser"`
	Quota    QuotaConfig    `yaml:"quota"`
	Accounts AccountsConfig `yaml:"accounts"`
}

// BrowserConfig controls the Chrome collaborator.
type BrowserConfig struct {
	ChatURL       string        `yaml:"chat_url"`
	LoginURL      string        `yaml:"login_url"`
	Remote        string        `yaml:"remote"` // WebSocket URL of an external Chrome
	Headless      *bool         `yaml:"headless"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

// QuotaConfig controls the account rotation window.
type QuotaConfig struct {
	DB          string `yaml:"db"`
	Limit       int    `yaml:"limit"`
	WindowHours int    `yaml:"window_hours"`
}

// AccountsConfig names the pool source. File wins over the inline JSON,
// which wins over the single email/password pair.
type AccountsConfig struct {
	File     string `yaml:"file"`
	JSON     string `yaml:"json"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// LoadConfig reads a YAML configuration file. An empty path yields the
// defaults, configured further through the environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":" + env("PORT", "8086")
	}
	if c.DataDir == "" {
		c.DataDir = env("DATA_DIR", "data")
	}
	if c.Provider == "" {
		c.Provider = "chatgpt-web"
	}
	if c.Quota.DB == "" {
		c.Quota.DB = env("QUOTA_DB", "db/quota.db")
	}
	if c.Quota.Limit <= 0 {
		c.Quota.Limit = 10
	}
	if c.Quota.WindowHours <= 0 {
		c.Quota.WindowHours = 24
	}
	if c.Accounts.File == "" {
		c.Accounts.File = os.Getenv("ACCOUNTS_FILE")
	}
	if c.Accounts.JSON == "" {
		c.Accounts.JSON = os.Getenv("ACCOUNTS_JSON")
	}
	if c.Accounts.Email == "" {
		c.Accounts.Email = os.Getenv("ACCOUNT_EMAIL")
	}
	if c.Accounts.Password == "" {
		c.Accounts.Password = os.Getenv("ACCOUNT_PASSWORD")
	}
}

// Headless reports the configured default headless mode.
func (c *Config) HeadlessDefault() bool {
	if c.Browser.Headless != nil {
		return *c.Browser.Headless
	}
	return true
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
