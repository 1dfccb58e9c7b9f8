package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Client is the command-line client configuration, read from
// ~/.medidas/config.yaml when present.
type Client struct {
	ServerURL string        `yaml:"server_url"`
	DataDir   string        `yaml:"data_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultClient returns the built-in client settings rooted at home.
func DefaultClient(home string) Client {
	return Client{
		ServerURL: "http://localhost:8080",
		DataDir:   filepath.Join(home, ".medidas"),
		Timeout:   10 * time.Second,
	}
}

// DefaultClientPath is where LoadClient looks when no path is given.
func DefaultClientPath(home string) string {
	return filepath.Join(home, ".medidas", "config.yaml")
}

// LoadClient reads path over the defaults. A missing file is not an error.
func LoadClient(path, home string) (Client, error) {
	cfg := DefaultClient(home)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultClient(home).ServerURL
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultClient(home).DataDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClient(home).Timeout
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the parent directory.
func (c Client) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
