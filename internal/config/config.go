package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults match the upstream version-data repository the tracker was
// built around.
const (
	DefaultRepositoryURL  = "https://github.com/dotnet/versions"
	DefaultRepositoryPath = "build-info/dotnet/product/cli"
)

// Config models prodcon.yml.
type Config struct {
	Repository struct {
		URL  string `yaml:"url"`
		Path string `yaml:"path"`
	} `yaml:"repository"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Repository.URL = DefaultRepositoryURL
	cfg.Repository.Path = DefaultRepositoryPath
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Repository.URL == "" {
		return fmt.Errorf("config.repository.url is required")
	}
	if c.Repository.Path == "" {
		return fmt.Errorf("config.repository.path is required")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "prodcon.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// empty fall back to the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
