// Package config handles parsing of CLI flags, environment variables, and
// optional .stacie.yaml manifest files for the stacie ops server.
//
// Precedence (highest to lowest):
//  1. Command-line flags
//  2. STACIE_* environment variables
//  3. .stacie.yaml manifest settings
//  4. Defaults
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stacie-auth/stacie/internal/manifest"
)

// Config holds the parsed ops-server configuration.
type Config struct {
	// Listen port for the ops server.
	Port int

	// Path to .stacie.yaml manifest file.
	ManifestPath string

	// Path to a KEY=VALUE file of STACIE_REALM_<NAME>_SHARD declarations,
	// loaded in addition to the manifest and the process environment.
	ShardFilePath string

	// Bonus is the server-configured additive round count.
	// Overridden by manifest Bonus unless a flag/env value is explicitly set.
	Bonus uint64

	// If true, manifest validation warnings cause a startup failure.
	Strict bool

	// Hot reload configuration for the policy manifest.
	HotReload     bool
	HotReloadMode string // "file_watch", "signal", "poll"
	WatchPath     string
	PollInterval  time.Duration

	// Logging.
	LogFormat   string // "json" or "text"
	LogLevelStr string // "debug", "info", "warn", "error"

	// CORS allowed origins for the ops server's policy-change stream.
	AllowedOrigins []string

	// Separate health check port (optional, for K8s probes).
	HealthPort int

	// Session key settings (ephemeral_login_token issuance rate limiting).
	SessionKeyTTL     time.Duration
	SessionKeyMaxRate int // Per minute per IP.

	// Version flag.
	ShowVersion bool

	// Loaded manifest (nil if no manifest path was given; a load failure is
	// returned by Parse as an error).
	Manifest *manifest.Manifest
}

// LogLevel returns the slog.Level corresponding to the configured log level string.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.LogLevelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Parse reads configuration from CLI flags and environment variables.
// Precedence (highest to lowest): CLI flags > STACIE_* env vars > .stacie.yaml settings > defaults.
func Parse(args []string, version string) (*Config, error) {
	cfg := &Config{}

	// ── Phase 1: Pre-scan for --manifest so we can seed flag defaults from it ──
	manifestPath := prescanManifestFlag(args)
	if manifestPath == "" {
		manifestPath = os.Getenv("STACIE_MANIFEST")
	}
	cfg.ManifestPath = manifestPath
	if manifestPath != "" {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("loading manifest: %w", err)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("validating manifest: %w", err)
		}
		cfg.Manifest = m
	}

	// ── Phase 2: Compute manifest-derived defaults for settings ──────────────
	// These are overridden by STACIE_* env vars and CLI flags below.
	defaultHotReload := false
	defaultHotReloadMode := "signal"
	defaultPollInterval := "30s"
	defaultSessionTTL := "30s"
	defaultSessionMaxRate := 10
	defaultStrict := false
	defaultBonus := uint64(0)
	var defaultAllowedOrigins string

	if m := cfg.Manifest; m != nil {
		defaultBonus = m.Bonus
		if m.Settings != nil {
			defaultHotReload = m.Settings.HotReload
			if m.Settings.HotReloadMode != "" {
				defaultHotReloadMode = m.Settings.HotReloadMode
			}
			if m.Settings.HotReloadPollInterval != "" {
				defaultPollInterval = m.Settings.HotReloadPollInterval
			}
			if m.Settings.SessionKeyTTL != "" {
				defaultSessionTTL = m.Settings.SessionKeyTTL
			}
			if m.Settings.SessionKeyMaxRate > 0 {
				defaultSessionMaxRate = m.Settings.SessionKeyMaxRate
			}
			defaultStrict = m.Settings.StrictGuardrails
			if len(m.Settings.AllowedOrigins) > 0 {
				defaultAllowedOrigins = strings.Join(m.Settings.AllowedOrigins, ",")
			}
		}
	}

	// ── Phase 3: Parse flags (env vars overlay manifest, CLI flags overlay both)
	fs := flag.NewFlagSet("stacie-serve", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "port", envOrDefaultInt("STACIE_PORT", 8443), "Ops server listen port")
	fs.StringVar(&cfg.ManifestPath, "manifest", envOrDefault("STACIE_MANIFEST", manifestPath), "Path to .stacie.yaml manifest")
	fs.StringVar(&cfg.ShardFilePath, "shard-file", envOrDefault("STACIE_SHARD_FILE", ""), "Path to a KEY=VALUE file of STACIE_REALM_<NAME>_SHARD declarations")
	bonus := fs.Uint64("bonus", envOrDefaultUint64("STACIE_BONUS", defaultBonus), "Server-configured additive round count")
	fs.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("STACIE_STRICT", defaultStrict), "Exit on manifest validation warnings")
	fs.BoolVar(&cfg.HotReload, "hot-reload", envOrDefaultBool("STACIE_HOT_RELOAD", defaultHotReload), "Enable the policy hot-reload SSE endpoint")
	fs.StringVar(&cfg.HotReloadMode, "hot-reload-mode", envOrDefault("STACIE_HOT_RELOAD_MODE", defaultHotReloadMode), `Hot reload mode: "file_watch", "signal", or "poll"`)
	fs.StringVar(&cfg.WatchPath, "watch-path", envOrDefault("STACIE_WATCH_PATH", ""), "Path to watch for manifest changes (unused: file_watch mode polls the manifest at --poll-interval)")
	pollInterval := fs.String("poll-interval", envOrDefault("STACIE_POLL_INTERVAL", defaultPollInterval), "Poll interval (poll mode)")
	fs.StringVar(&cfg.LogFormat, "log-format", envOrDefault("STACIE_LOG_FORMAT", "json"), `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevelStr, "log-level", envOrDefault("STACIE_LOG_LEVEL", "info"), `Log level: "debug", "info", "warn", "error"`)
	originsStr := fs.String("allowed-origins", envOrDefault("STACIE_ALLOWED_ORIGINS", defaultAllowedOrigins), "Comma-separated allowed CORS origins for the policy stream")
	fs.IntVar(&cfg.HealthPort, "health-port", envOrDefaultInt("STACIE_HEALTH_PORT", 0), "Separate health check port (0 = same as main)")
	sessionTTL := fs.String("session-key-ttl", envOrDefault("STACIE_SESSION_KEY_TTL", defaultSessionTTL), "Ephemeral login token TTL")
	fs.IntVar(&cfg.SessionKeyMaxRate, "session-key-max-rate", envOrDefaultInt("STACIE_SESSION_KEY_MAX_RATE", defaultSessionMaxRate), "Max login-token issuances/min/IP")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Bonus = *bonus

	// Parse durations.
	var err error
	cfg.PollInterval, err = time.ParseDuration(*pollInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid poll-interval %q: %w", *pollInterval, err)
	}
	cfg.SessionKeyTTL, err = time.ParseDuration(*sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid session-key-ttl %q: %w", *sessionTTL, err)
	}

	// Parse origins.
	if *originsStr != "" {
		cfg.AllowedOrigins = strings.Split(*originsStr, ",")
		for i := range cfg.AllowedOrigins {
			cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
		}
	}

	// Validate hot reload mode.
	switch cfg.HotReloadMode {
	case "file_watch", "signal", "poll":
		// OK.
	default:
		return nil, fmt.Errorf("invalid hot-reload-mode %q: must be \"file_watch\", \"signal\", or \"poll\"", cfg.HotReloadMode)
	}

	return cfg, nil
}

// prescanManifestFlag scans args for --manifest or -manifest (flag or flag=value form)
// without going through the full flag.FlagSet (which would reject unknown flags).
func prescanManifestFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		for _, prefix := range []string{"--manifest=", "-manifest="} {
			if strings.HasPrefix(arg, prefix) {
				return strings.TrimPrefix(arg, prefix)
			}
		}
		if (arg == "--manifest" || arg == "-manifest") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// envOrDefault returns the value of the environment variable or the default.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envOrDefaultInt returns the int value of the environment variable or the default.
func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// envOrDefaultUint64 returns the uint64 value of the environment variable or the default.
func envOrDefaultUint64(key string, defaultVal uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

// envOrDefaultBool returns the bool value of the environment variable or the default.
func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
