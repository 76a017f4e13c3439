package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/docboxhq/docbox/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".docbox", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".docbox", "logs", "docbox.log")
	DefaultDataDir     = filepath.Join(home, ".docbox", "data")
	DefaultServerURL   = "https://api.docbox.dev"
	DefaultClientURL   = "http://localhost:7438"
)

type Config struct {
	DataDir        string   `json:"data_dir"`
	ServerURL      string   `json:"server_url"`
	AuthToken      string   `json:"auth_token,omitempty"`
	ClientURL      string   `json:"client_url"`
	ClientToken    string   `json:"client_token,omitempty"`
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
	Path           string   `json:"-"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("invalid server_url %q: %w", c.ServerURL, err)
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	if c.ClientURL == "" {
		c.ClientURL = DefaultClientURL
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}

	return &cfg, nil
}
