package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"teamline/internal/domain"
)

// Config models teamline.yml.
type Config struct {
	Schedule struct {
		// DefaultPriority is assigned to groups the engine creates itself.
		DefaultPriority string `yaml:"default_priority"`
		// ExpandAdjacentOnMove controls whether range moves absorb sibling
		// assignments for the same project and member.
		ExpandAdjacentOnMove bool `yaml:"expand_adjacent_on_move"`
	} `yaml:"schedule"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

const defaultTemplate = `schedule:
  default_priority: normal
  expand_adjacent_on_move: true
server:
  addr: 127.0.0.1:8080
  base_path: /v0
`

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// Load reads teamline.yml from the workspace, falling back to defaults when
// the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !domain.ValidPriority(c.Schedule.DefaultPriority) {
		return fmt.Errorf("config.schedule.default_priority must be one of high, normal, low")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	return nil
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "teamline.yml")
}
