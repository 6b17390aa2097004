package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/clean-dependency-project/winiso/internal/matrix"
	"github.com/clean-dependency-project/winiso/internal/platform"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "winiso.yaml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		configData  string
		expectError bool
		errorIs     error
	}{
		{
			name: "valid config",
			configData: `
version: "1.0"
metadata:
  name: "test config"
  description: "test description"
config:
  request_timeout: "90s"
  failure_ttl: "12h"
  concurrency: 2
  probe_filename: false
  storage:
    database_path: "/tmp/winiso.db"
  kv:
    enabled: true
    addr: "localhost:6379"
    key_prefix: "win-"
architectures: ["i686-UNUSED", "x86_64", "aarch64"]
targets:
  - release: "11"
    arch: "x86_64"
    url: "https://microsoft.com/en-us/software-download/windows11"
`,
		},
		{
			name:        "missing version",
			configData:  "targets: []\n",
			expectError: true,
			errorIs:     ErrVersionRequired,
		},
		{
			name:        "no targets",
			configData:  "version: \"1.0\"\n",
			expectError: true,
			errorIs:     ErrNoTargets,
		},
		{
			name: "unknown arch",
			configData: `
version: "1.0"
targets:
  - {release: "11", arch: "ppc64", url: "https://example.com/p"}
`,
			expectError: true,
			errorIs:     ErrUnknownArch,
		},
		{
			name: "relative url",
			configData: `
version: "1.0"
targets:
  - {release: "11", arch: "x86_64", url: "/software-download/windows11"}
`,
			expectError: true,
			errorIs:     ErrTargetURLInvalid,
		},
		{
			name: "bad release",
			configData: `
version: "1.0"
targets:
  - {release: "eleven", arch: "x86_64", url: "https://example.com/p"}
`,
			expectError: true,
			errorIs:     ErrInvalidRelease,
		},
		{
			name: "empty architecture table",
			configData: `
version: "1.0"
architectures: []
targets:
  - {release: "11", arch: "x86_64", url: "https://example.com/p"}
`,
			expectError: true,
			errorIs:     ErrNoArchitectures,
		},
		{
			name: "kv without addr",
			configData: `
version: "1.0"
config:
  kv: {enabled: true}
targets:
  - {release: "11", arch: "x86_64", url: "https://example.com/p"}
`,
			expectError: true,
			errorIs:     ErrKVAddrRequired,
		},
		{
			name: "bad timeout",
			configData: `
version: "1.0"
config:
  request_timeout: "soon"
targets:
  - {release: "11", arch: "x86_64", url: "https://example.com/p"}
`,
			expectError: true,
			errorIs:     ErrInvalidDuration,
		},
		{
			name:        "invalid yaml",
			configData:  "version: [",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(writeConfig(t, tt.configData))
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if tt.errorIs != nil && !errors.Is(err, tt.errorIs) {
					t.Errorf("expected error %v, got %v", tt.errorIs, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Metadata.Name != "test config" {
				t.Errorf("Metadata.Name = %q", config.Metadata.Name)
			}
			if d, _ := config.Config.GetRequestTimeout(); d != 90*time.Second {
				t.Errorf("GetRequestTimeout() = %v", d)
			}
			if d, _ := config.Config.GetFailureTTL(); d != 12*time.Hour {
				t.Errorf("GetFailureTTL() = %v", d)
			}
			if config.Config.ShouldProbeFilename() {
				t.Error("ShouldProbeFilename() = true, want false")
			}
			if config.Config.KV.GetKeyPrefix() != "win-" {
				t.Errorf("GetKeyPrefix() = %q", config.Config.KV.GetKeyPrefix())
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}

	want := []matrix.Target{
		{Release: "11", Arch: "x86_64", URL: "https://microsoft.com/en-us/software-download/windows11"},
		{Release: "11", Arch: "aarch64", URL: "https://microsoft.com/en-us/software-download/windows11ARM64"},
		{Release: "10", Arch: "x86_64", URL: "https://microsoft.com/en-us/software-download/windows10ISO"},
	}
	if got := config.MatrixTargets(); !reflect.DeepEqual(got, want) {
		t.Errorf("MatrixTargets() = %+v, want %+v", got, want)
	}
	if !reflect.DeepEqual(config.ArchitectureTable(), platform.DefaultArchitectures()) {
		t.Errorf("ArchitectureTable() = %v", config.ArchitectureTable())
	}

	if d, err := config.Config.GetRequestTimeout(); err != nil || d != 0 {
		t.Errorf("default request timeout = %v, %v; want none", d, err)
	}
	if d, err := config.Config.GetFailureTTL(); err != nil || d != 24*time.Hour {
		t.Errorf("default failure TTL = %v, %v", d, err)
	}
	if !config.Config.ShouldProbeFilename() {
		t.Error("filename probe should default to on")
	}
	if config.ConnectorConfig().Profile != "606624d44113" {
		t.Errorf("ConnectorConfig().Profile = %q", config.ConnectorConfig().Profile)
	}
	if config.SessionConfig().OrgID != "y6jn8c31" {
		t.Errorf("SessionConfig().OrgID = %q", config.SessionConfig().OrgID)
	}
}

func TestGlobalConfig_Defaults(t *testing.T) {
	var g GlobalConfig
	if g.GetDatabasePath() != DefaultDatabasePath {
		t.Errorf("GetDatabasePath() = %q", g.GetDatabasePath())
	}
	if g.KV.GetKeyPrefix() != "windows-" {
		t.Errorf("GetKeyPrefix() = %q", g.KV.GetKeyPrefix())
	}
	wc, err := (&Config{}).WebClientConfig()
	if err != nil || wc.Timeout != 0 {
		t.Errorf("WebClientConfig() = %+v, %v", wc, err)
	}
}

func TestReleaseConfig_ValidateRelease(t *testing.T) {
	r := ReleaseConfig{}
	if !errors.Is(r.ValidateRelease(), ErrRepositoryRequired) {
		t.Error("expected ErrRepositoryRequired")
	}
	r.GitHubRepository = "owner/repo"
	if err := r.ValidateRelease(); err != nil {
		t.Errorf("ValidateRelease() = %v", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := SaveConfig(DefaultConfig(), path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !reflect.DeepEqual(loaded.Targets, DefaultConfig().Targets) {
		t.Errorf("targets changed across save/load: %+v", loaded.Targets)
	}
}
