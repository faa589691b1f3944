// Package manifest loads and parses .stacie.yaml policy manifest files.
//
// The manifest declares the realms a deployment serves (their non-secret
// shards), the server-configured round-count bonus, and the ops-server
// settings that provide the lowest-priority defaults, overridden by
// STACIE_* environment variables and CLI flags.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RealmDecl declares a single realm entry in the manifest.
type RealmDecl struct {
	// Shard is the realm's non-secret per-realm entropy, base64url-encoded
	// (RFC 4648 §5, unpadded), as it appears in the manifest file.
	Shard string `yaml:"shard"`

	// Description is a human-readable note (informational only).
	Description string `yaml:"description,omitempty"`
}

// Settings holds ops-server configuration from the manifest settings block.
type Settings struct {
	StrictGuardrails      bool     `yaml:"strict_guardrails"`
	HotReload             bool     `yaml:"hot_reload"`
	HotReloadMode         string   `yaml:"hot_reload_mode"`
	HotReloadPollInterval string   `yaml:"hot_reload_poll_interval"`
	SessionKeyTTL         string   `yaml:"session_key_ttl"`
	SessionKeyMaxRate     int      `yaml:"session_key_max_rate"`
	AllowedOrigins        []string `yaml:"allowed_origins"`
}

// Manifest holds the fully parsed .stacie.yaml contents.
type Manifest struct {
	// Version is the manifest schema version string (e.g. "1").
	Version string `yaml:"version"`

	// Bonus is the server-configured additive round count.
	Bonus uint64 `yaml:"bonus"`

	// Realms maps a realm label to its declaration.
	Realms map[string]RealmDecl `yaml:"realms"`

	// Settings holds optional ops-server configuration. May be nil if the
	// settings block is absent.
	Settings *Settings `yaml:"settings"`
}

// Load reads and parses a .stacie.yaml manifest file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %q: %w", path, err)
	}
	if m.Settings == nil {
		m.Settings = defaultSettings()
	}
	return &m, nil
}

// Validate checks the manifest's internal consistency: every declared realm
// must carry a non-empty shard. The shard's encoding and decoded length are
// not checked here; internal/guardrails reports those as warnings.
func (m *Manifest) Validate() error {
	if m == nil {
		return nil
	}

	var errs []string
	for realm, decl := range m.Realms {
		if strings.TrimSpace(decl.Shard) == "" {
			errs = append(errs, fmt.Sprintf("realm %q declares no shard", realm))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// defaultSettings returns a Settings struct populated with the ops server's
// default hot-reload and session-key settings.
func defaultSettings() *Settings {
	return &Settings{
		HotReloadMode:         "signal",
		HotReloadPollInterval: "30s",
		SessionKeyTTL:         "30s",
		SessionKeyMaxRate:     10,
	}
}
