// Package config provides configuration management for winiso.
// It handles the YAML file describing the vendor endpoints, the architecture
// table, the (release, architecture, product page) targets and the sinks
// results are written to.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clean-dependency-project/winiso/internal/connector"
	"github.com/clean-dependency-project/winiso/internal/matrix"
	"github.com/clean-dependency-project/winiso/internal/output"
	"github.com/clean-dependency-project/winiso/internal/platform"
	"github.com/clean-dependency-project/winiso/internal/session"
	"github.com/clean-dependency-project/winiso/internal/version"
	"github.com/clean-dependency-project/winiso/internal/webclient"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired    = errors.New("version is required")
	ErrNoTargets          = errors.New("at least one target must be configured")
	ErrNoArchitectures    = errors.New("architecture table cannot be empty")
	ErrTargetURLInvalid   = errors.New("target url must be an absolute http(s) url")
	ErrUnknownArch        = errors.New("target arch is not in the architecture table")
	ErrInvalidRelease     = errors.New("target release is not a valid release label")
	ErrKVAddrRequired     = errors.New("kv addr is required when kv is enabled")
	ErrRepositoryRequired = errors.New("github_repository is required when release is configured")
	ErrInvalidDuration    = errors.New("invalid duration")
)

// Default values used when a field is left empty.
const (
	DefaultDatabasePath = "winiso.db"
	DefaultTagPrefix    = "windows"
	DefaultNameTemplate = "windows images {date}"
)

// Config represents the top-level configuration structure.
type Config struct {
	Version       string       `yaml:"version"`
	Metadata      Metadata     `yaml:"metadata"`
	Config        GlobalConfig `yaml:"config"`
	Architectures []string     `yaml:"architectures"`
	Targets       []Target     `yaml:"targets"`
}

// Metadata represents metadata about the configuration.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Target is one product page to enumerate.
type Target struct {
	Release string `yaml:"release"`
	Arch    string `yaml:"arch"`
	URL     string `yaml:"url"`
}

// StorageConfig represents storage configuration for the matrix hand-off.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// KVConfig represents the Redis sink for resolution envelopes.
type KVConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ReleaseConfig represents GitHub release configuration.
type ReleaseConfig struct {
	GitHubRepository    string `yaml:"github_repository"`     // Repository in "owner/repo" format
	TagPrefix           string `yaml:"tag_prefix"`            // e.g., "windows"
	DraftRelease        bool   `yaml:"draft_release"`         // Create as draft (default: false)
	ReleaseNameTemplate string `yaml:"release_name_template"` // e.g., "windows images {date}"
}

// GlobalConfig represents global configuration settings.
type GlobalConfig struct {
	UserAgent        string        `yaml:"user_agent"`
	Locale           string        `yaml:"locale"`
	Profile          string        `yaml:"profile"`
	ConnectorBaseURL string        `yaml:"connector_base_url"`
	SessionGateURL   string        `yaml:"session_gate_url"`
	OrgID            string        `yaml:"org_id"`
	RequestTimeout   string        `yaml:"request_timeout"` // empty means no timeout
	FailureTTL       string        `yaml:"failure_ttl"`
	Concurrency      int           `yaml:"concurrency"`
	ProbeFilename    *bool         `yaml:"probe_filename"`
	Storage          StorageConfig `yaml:"storage"`
	KV               KVConfig      `yaml:"kv"`
	Release          ReleaseConfig `yaml:"release"`
}

// GetRequestTimeout parses the request timeout. Empty means none.
func (g *GlobalConfig) GetRequestTimeout() (time.Duration, error) {
	return parseDuration("request_timeout", g.RequestTimeout, 0)
}

// GetFailureTTL parses the failure TTL, defaulting to one day.
func (g *GlobalConfig) GetFailureTTL() (time.Duration, error) {
	return parseDuration("failure_ttl", g.FailureTTL, 24*time.Hour)
}

// ShouldProbeFilename reports whether resolved links are followed to learn
// the file name. Defaults to true.
func (g *GlobalConfig) ShouldProbeFilename() bool {
	return g.ProbeFilename == nil || *g.ProbeFilename
}

// GetDatabasePath returns the configured database path or the default.
func (g *GlobalConfig) GetDatabasePath() string {
	if g.Storage.DatabasePath == "" {
		return DefaultDatabasePath
	}
	return g.Storage.DatabasePath
}

// GetKeyPrefix returns the KV key prefix or the default.
func (k *KVConfig) GetKeyPrefix() string {
	if k.KeyPrefix == "" {
		return output.DefaultKeyPrefix
	}
	return k.KeyPrefix
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w for %s: %q", ErrInvalidDuration, field, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w for %s: %q is negative", ErrInvalidDuration, field, value)
	}
	return d, nil
}

// ArchitectureTable returns the configured table, or the vendor default.
func (c *Config) ArchitectureTable() platform.Architectures {
	if len(c.Architectures) == 0 {
		return platform.DefaultArchitectures()
	}
	return platform.Architectures(c.Architectures)
}

// MatrixTargets returns the configured targets in declaration order.
func (c *Config) MatrixTargets() []matrix.Target {
	targets := make([]matrix.Target, len(c.Targets))
	for i, t := range c.Targets {
		targets[i] = matrix.Target{Release: t.Release, Arch: t.Arch, URL: t.URL}
	}
	return targets
}

// WebClientConfig returns settings for the shared HTTP client.
func (c *Config) WebClientConfig() (webclient.Config, error) {
	timeout, err := c.Config.GetRequestTimeout()
	if err != nil {
		return webclient.Config{}, err
	}
	return webclient.Config{UserAgent: c.Config.UserAgent, Timeout: timeout}, nil
}

// ConnectorConfig returns settings for the connector API client.
func (c *Config) ConnectorConfig() connector.Config {
	return connector.Config{
		BaseURL: c.Config.ConnectorBaseURL,
		Profile: c.Config.Profile,
		Locale:  c.Config.Locale,
	}
}

// SessionConfig returns settings for the session permitter.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		GateURL: c.Config.SessionGateURL,
		OrgID:   c.Config.OrgID,
	}
}

// LoadConfig loads and parses the configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if c.Architectures != nil && len(c.Architectures) == 0 {
		return ErrNoArchitectures
	}
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	archs := c.ArchitectureTable()
	for i, target := range c.Targets {
		if err := target.Validate(archs); err != nil {
			return fmt.Errorf("target %d (%s/%s): %w", i, target.Release, target.Arch, err)
		}
	}
	if _, err := c.Config.GetRequestTimeout(); err != nil {
		return err
	}
	if _, err := c.Config.GetFailureTTL(); err != nil {
		return err
	}
	if c.Config.KV.Enabled && c.Config.KV.Addr == "" {
		return ErrKVAddrRequired
	}
	return nil
}

// Validate validates a single target against the architecture table.
func (t *Target) Validate(archs platform.Architectures) error {
	if _, err := version.ParseRelease(t.Release); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRelease, err)
	}
	if !archs.Contains(t.Arch) {
		return fmt.Errorf("%w: %s", ErrUnknownArch, t.Arch)
	}
	u, err := url.Parse(t.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrTargetURLInvalid, t.URL)
	}
	return nil
}

// ValidateRelease checks the release section before publishing.
func (r *ReleaseConfig) ValidateRelease() error {
	if r.GitHubRepository == "" {
		return ErrRepositoryRequired
	}
	return nil
}

// DefaultConfig returns the configuration matching the vendor's current pages.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Metadata: Metadata{
			Name:        "winiso",
			Description: "Windows installation image download links",
		},
		Config: GlobalConfig{
			UserAgent:        webclient.DefaultUserAgent,
			Locale:           connector.DefaultLocale,
			Profile:          connector.DefaultProfile,
			ConnectorBaseURL: connector.DefaultBaseURL,
			SessionGateURL:   session.DefaultGateURL,
			OrgID:            session.DefaultOrgID,
			FailureTTL:       "24h",
			Storage: StorageConfig{
				DatabasePath: DefaultDatabasePath,
			},
			KV: KVConfig{
				KeyPrefix: output.DefaultKeyPrefix,
			},
			Release: ReleaseConfig{
				TagPrefix:           DefaultTagPrefix,
				ReleaseNameTemplate: DefaultNameTemplate,
			},
		},
		Architectures: []string(platform.DefaultArchitectures()),
		Targets: []Target{
			{Release: "11", Arch: platform.ArchX86_64, URL: "https://microsoft.com/en-us/software-download/windows11"},
			{Release: "11", Arch: platform.ArchAArch64, URL: "https://microsoft.com/en-us/software-download/windows11ARM64"},
			{Release: "10", Arch: platform.ArchX86_64, URL: "https://microsoft.com/en-us/software-download/windows10ISO"},
		},
	}
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}
