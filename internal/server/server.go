// Package server orchestrates the stacie ops server lifecycle.
//
// The ops server is a small read-only control-plane process alongside a
// STACIE deployment: it exposes the realm and guardrail posture of the
// active manifest for operators and orchestrators, and streams reload
// events so operator tooling can react when the manifest changes. It never
// participates in the credential-derivation or realm-sealing wire protocol
// itself — those are pure library calls, not network calls, per the
// project's non-goals around a network authentication protocol.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacie-auth/stacie/internal/config"
	"github.com/stacie-auth/stacie/internal/guardrails"
	"github.com/stacie-auth/stacie/internal/health"
	"github.com/stacie-auth/stacie/internal/hotreload"
	"github.com/stacie-auth/stacie/internal/manifest"
	"github.com/stacie-auth/stacie/internal/metrics"
)

// Server is the stacie ops server.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string
	metrics *metrics.Metrics

	manifest     *manifest.Manifest
	hotReloadHub *hotreload.Hub
	httpServer   *http.Server
	healthServer *http.Server // Optional separate health server.
	startTime    time.Time
}

// New creates and initialises a new stacie ops server.
//
// Startup sequence:
//  1. Resolve the effective realm set (manifest realms overridden/supplemented
//     by STACIE_REALM_<NAME>_SHARD environment variables).
//  2. Run the shard guardrail scan.
//  3. Register HTTP handlers (/healthz, /metrics, /v1/policy/changes).
func New(cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		metrics:   metrics.Default(),
		startTime: time.Now(),
	}

	m, err := resolveManifest(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.manifest = m

	logger.Info("running guardrail scan on realm shards")
	gr := guardrails.Scan(m.Realms, logger)
	s.metrics.SetGuardrailWarnings(len(gr.Warnings))
	s.metrics.SetRealmsDeclared(len(m.Realms))

	if gr.HasWarnings() && cfg.Strict {
		return nil, fmt.Errorf(
			"guardrail scan found %d warning(s) and --strict is enabled; refusing to start",
			len(gr.Warnings),
		)
	}

	if cfg.HotReload {
		s.hotReloadHub = hotreload.NewHub(logger)
	}

	mux := http.NewServeMux()

	counters := func() health.Counters {
		return health.Counters{
			DerivationsTotal: s.metrics.DerivationsTotalSum(),
			SealsTotal:       s.metrics.SealsTotalSum(),
			OpensTotal:       s.metrics.OpensTotalSum(),
		}
	}
	healthHandler := health.NewHandler(version, m, gr, counters, s.startTime)
	mux.Handle("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	if cfg.HotReload && s.hotReloadHub != nil {
		mux.Handle("/v1/policy/changes", hotreload.NewHandler(s.hotReloadHub))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.HealthPort > 0 && cfg.HealthPort != cfg.Port {
		healthMux := http.NewServeMux()
		healthMux.Handle("/healthz", healthHandler)
		s.healthServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HealthPort),
			Handler: healthMux,
		}
	}

	logger.Info("stacie.server.started",
		"version", version,
		"port", cfg.Port,
		"realms_declared", len(m.Realms),
		"guardrail_warnings", len(gr.Warnings),
		"hot_reload", cfg.HotReload,
		"strict", cfg.Strict,
	)

	return s, nil
}

// resolveManifest merges the manifest's declared realms with any shard-file
// declarations and, on top of those, STACIE_REALM_<NAME>_SHARD environment
// overrides. Precedence, lowest to highest: manifest < shard file < environment.
func resolveManifest(cfg *config.Config, logger *slog.Logger) (*manifest.Manifest, error) {
	m := cfg.Manifest
	if m == nil {
		m = &manifest.Manifest{Realms: map[string]manifest.RealmDecl{}}
	}
	if m.Realms == nil {
		m.Realms = map[string]manifest.RealmDecl{}
	}

	if cfg.ShardFilePath != "" {
		fileShards, err := config.ReadRealmShardsFromFile(cfg.ShardFilePath)
		if err != nil {
			return nil, fmt.Errorf("reading realm shards from shard file: %w", err)
		}
		for _, fs := range fileShards {
			decl := m.Realms[fs.Realm]
			decl.Shard = fs.Shard
			m.Realms[fs.Realm] = decl
			logger.Info("stacie.config.realm_shard_from_file", "realm", fs.Realm, "source", cfg.ShardFilePath)
		}
	}

	envShards, err := config.ReadRealmShardsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("reading realm shards from environment: %w", err)
	}

	for _, es := range envShards {
		decl := m.Realms[es.Realm]
		decl.Shard = es.Shard
		m.Realms[es.Realm] = decl
		logger.Info("stacie.config.realm_shard_from_env", "realm", es.Realm, "source", es.OriginalKey)
	}

	return m, nil
}

// Start begins serving HTTP requests. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.healthServer != nil {
		go func() {
			s.logger.Info("health server starting", "addr", s.healthServer.Addr)
			if err := s.healthServer.ListenAndServe(); err != http.ErrServerClosed {
				s.logger.Error("health server error", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down ops server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if s.healthServer != nil {
			s.healthServer.Shutdown(shutdownCtx)
		}
		return s.httpServer.Shutdown(shutdownCtx)

	case err := <-errCh:
		return err
	}
}

// Reload re-reads the manifest and realm shard environment, broadcasting a
// policy-change event for each realm whose shard changed. Used for hot
// reload (SIGHUP/file-watch/poll mode).
func (s *Server) Reload() error {
	s.logger.Info("reloading policy manifest")

	var reloaded *manifest.Manifest
	if s.cfg.ManifestPath != "" {
		m, err := manifest.Load(s.cfg.ManifestPath)
		if err != nil {
			s.metrics.RecordPolicyReload(false)
			return fmt.Errorf("reloading manifest: %w", err)
		}
		if err := m.Validate(); err != nil {
			s.metrics.RecordPolicyReload(false)
			return fmt.Errorf("validating reloaded manifest: %w", err)
		}
		reloaded = m
	} else {
		reloaded = &manifest.Manifest{Realms: map[string]manifest.RealmDecl{}}
	}

	s.cfg.Manifest = reloaded
	newManifest, err := resolveManifest(s.cfg, s.logger)
	if err != nil {
		s.metrics.RecordPolicyReload(false)
		return err
	}

	if s.hotReloadHub != nil {
		s.broadcastChanges(s.manifest, newManifest)
	}

	s.manifest = newManifest
	s.metrics.RecordPolicyReload(true)
	s.metrics.SetRealmsDeclared(len(newManifest.Realms))

	s.logger.Info("policy manifest reloaded", "realms_declared", len(newManifest.Realms))
	return nil
}

// broadcastChanges compares old and new realm declarations and emits SSE
// events for every realm whose shard changed, was added, or was removed.
func (s *Server) broadcastChanges(oldManifest, newManifest *manifest.Manifest) {
	for realm, decl := range newManifest.Realms {
		oldDecl, existed := oldManifest.Realms[realm]
		if !existed || oldDecl.Shard != decl.Shard {
			s.hotReloadHub.Broadcast(hotreload.Event{
				Type:  "stacie:realm:update",
				Realm: realm,
				Value: decl.Shard,
			})
		}
	}

	for realm := range oldManifest.Realms {
		if _, exists := newManifest.Realms[realm]; !exists {
			s.hotReloadHub.Broadcast(hotreload.Event{
				Type:  "stacie:realm:delete",
				Realm: realm,
			})
		}
	}
}
