// Package health provides the /healthz endpoint for the stacie ops server.
//
// It reports realm and guardrail-warning counts plus derivation activity
// counters so an operator or orchestrator probe can distinguish "serving
// traffic" from "serving traffic against a misconfigured manifest".
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacie-auth/stacie/internal/guardrails"
	"github.com/stacie-auth/stacie/internal/manifest"
)

// Response is the JSON body returned by /healthz.
type Response struct {
	Status           string          `json:"status"`
	Version          string          `json:"version"`
	Realms           RealmCounts     `json:"realms"`
	Guardrails       GuardrailStatus `json:"guardrails"`
	DerivationsTotal uint64          `json:"derivations_total"`
	SealsTotal       uint64          `json:"seals_total"`
	OpensTotal       uint64          `json:"opens_total"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
}

// RealmCounts holds the number of realms declared in the active manifest.
type RealmCounts struct {
	Declared int `json:"declared"`
}

// GuardrailStatus holds shard guardrail scan results.
type GuardrailStatus struct {
	Warnings int `json:"warnings"`
}

// Counters is the minimal set of activity counters the health handler
// reports; Server keeps the authoritative copies and passes a snapshot in.
type Counters struct {
	DerivationsTotal uint64
	SealsTotal       uint64
	OpensTotal       uint64
}

// Handler serves the /healthz endpoint.
type Handler struct {
	version         string
	manifest        *manifest.Manifest
	guardrailResult *guardrails.Result
	counters        func() Counters
	startTime       time.Time
}

// NewHandler creates a new health check handler. counters is invoked on
// every request to obtain a fresh snapshot; it may be nil.
func NewHandler(version string, m *manifest.Manifest, gr *guardrails.Result, counters func() Counters, startTime time.Time) *Handler {
	return &Handler{
		version:         version,
		manifest:        m,
		guardrailResult: gr,
		counters:        counters,
		startTime:       startTime,
	}
}

// ServeHTTP handles GET /healthz requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	warnings := 0
	if h.guardrailResult != nil {
		warnings = len(h.guardrailResult.Warnings)
	}

	declared := 0
	if h.manifest != nil {
		declared = len(h.manifest.Realms)
	}

	var c Counters
	if h.counters != nil {
		c = h.counters()
	}

	resp := Response{
		Status:  "healthy",
		Version: h.version,
		Realms: RealmCounts{
			Declared: declared,
		},
		Guardrails: GuardrailStatus{
			Warnings: warnings,
		},
		DerivationsTotal: c.DerivationsTotal,
		SealsTotal:       c.SealsTotal,
		OpensTotal:       c.OpensTotal,
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Default().Error("stacie.health.encode_error", "error", err)
	}
}
