package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"whygo/internal/domain"
)

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config models whygo.yml.
type Config struct {
	Mode         string `yaml:"mode" json:"mode"`
	Organization struct {
		Name        string   `yaml:"name" json:"name"`
		Departments []string `yaml:"departments" json:"departments"`
	} `yaml:"organization" json:"organization"`
	Goals struct {
		MinGoalLength int `yaml:"min_goal_length" json:"min_goal_length"`
		MinWhyLength  int `yaml:"min_why_length" json:"min_why_length"`
		DefaultYear   int `yaml:"default_year" json:"default_year"`
	} `yaml:"goals" json:"goals"`
	Store struct {
		MaxBatchWrites int `yaml:"max_batch_writes" json:"max_batch_writes"`
	} `yaml:"store" json:"store"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with whygo config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeProduction, ModeDevelopment:
	default:
		return fmt.Errorf("config.mode must be %q or %q", ModeProduction, ModeDevelopment)
	}
	if strings.TrimSpace(c.Organization.Name) == "" {
		return fmt.Errorf("config.organization.name is required")
	}
	for _, d := range c.Organization.Departments {
		if !domain.IsDepartment(d) {
			return fmt.Errorf("config.organization.departments: unknown department %s", d)
		}
	}
	if c.Goals.MinGoalLength < 0 || c.Goals.MinWhyLength < 0 {
		return fmt.Errorf("config.goals minimum lengths must not be negative")
	}
	if c.Store.MaxBatchWrites < 2 {
		return fmt.Errorf("config.store.max_batch_writes must be at least 2")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// DevMode reports whether development-only behavior is enabled.
func (c *Config) DevMode() bool {
	return c != nil && c.Mode == ModeDevelopment
}

// HasDepartment reports whether the organization uses the department.
func (c *Config) HasDepartment(name string) bool {
	if !domain.IsDepartment(name) {
		return false
	}
	if c == nil || len(c.Organization.Departments) == 0 {
		return true
	}
	for _, d := range c.Organization.Departments {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "whygo.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgName string) string {
	return fmt.Sprintf(defaultTemplate, orgName)
}

// Default returns the default Config struct.
func Default(orgName string) *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault(orgName)), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing values
// fall back to the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("WhyGo")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `mode: production

organization:
  name: %s
  departments: []

goals:
  min_goal_length: 10
  min_why_length: 50
  default_year: 0

store:
  max_batch_writes: 500

webhooks: []
`
