// Package metrics provides Prometheus metrics for the stacie ops server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "stacie"

// Metrics contains every Prometheus metric the ops server exposes.
type Metrics struct {
	DerivationsTotal     *prometheus.CounterVec
	DerivationLatency    *prometheus.HistogramVec
	RoundCountObserved    prometheus.Histogram

	SealsTotal   *prometheus.CounterVec
	OpensTotal   *prometheus.CounterVec
	OpenFailures *prometheus.CounterVec

	GuardrailWarnings prometheus.Gauge
	RealmsDeclared    prometheus.Gauge

	PolicyReloadsTotal   prometheus.Counter
	PolicyReloadFailures prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide metrics instance, registered against the
// default Prometheus registry on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered against reg,
// letting tests use an isolated registry instead of the global default.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DerivationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derivations_total",
			Help:      "Total key-ladder derivations by stage",
		}, []string{"stage"}),
		DerivationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "derivation_latency_seconds",
			Help:      "Histogram of key-ladder derivation latency by stage",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		RoundCountObserved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_count_observed",
			Help:      "Histogram of round counts produced by the round planner",
			Buckets:   []float64{4096, 16384, 65536, 131072, 196608, 262144, 524288},
		}),

		SealsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realm_seals_total",
			Help:      "Total realm envelopes sealed, by realm",
		}, []string{"realm"}),
		OpensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realm_opens_total",
			Help:      "Total realm envelopes opened successfully, by realm",
		}, []string{"realm"}),
		OpenFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realm_open_failures_total",
			Help:      "Total realm envelope open failures, by realm and reason",
		}, []string{"realm", "reason"}),

		GuardrailWarnings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "guardrail_warnings",
			Help:      "Number of guardrail warnings from the last shard scan",
		}),
		RealmsDeclared: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realms_declared",
			Help:      "Number of realms declared in the active manifest",
		}),

		PolicyReloadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_reloads_total",
			Help:      "Total successful manifest reloads",
		}),
		PolicyReloadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_reload_failures_total",
			Help:      "Total manifest reload attempts that failed validation",
		}),
	}
}

// RecordDerivation records one key-ladder derivation of the given stage
// ("seed", "master_key", "password_key", "verification_token",
// "login_token") and its latency.
func (m *Metrics) RecordDerivation(stage string, latencySeconds float64) {
	m.DerivationsTotal.WithLabelValues(stage).Inc()
	m.DerivationLatency.WithLabelValues(stage).Observe(latencySeconds)
}

// RecordRoundCount records a round count produced by the round planner.
func (m *Metrics) RecordRoundCount(rounds uint32) {
	m.RoundCountObserved.Observe(float64(rounds))
}

// RecordSeal records a successful realm Seal call.
func (m *Metrics) RecordSeal(realm string) {
	m.SealsTotal.WithLabelValues(realm).Inc()
}

// RecordOpen records a successful realm Open call.
func (m *Metrics) RecordOpen(realm string) {
	m.OpensTotal.WithLabelValues(realm).Inc()
}

// RecordOpenFailure records a failed realm Open call, tagged with reason
// (e.g. "authentication_failure", "invalid_padding").
func (m *Metrics) RecordOpenFailure(realm, reason string) {
	m.OpenFailures.WithLabelValues(realm, reason).Inc()
}

// SetGuardrailWarnings updates the current guardrail warning count.
func (m *Metrics) SetGuardrailWarnings(count int) {
	m.GuardrailWarnings.Set(float64(count))
}

// SetRealmsDeclared updates the current declared-realm count.
func (m *Metrics) SetRealmsDeclared(count int) {
	m.RealmsDeclared.Set(float64(count))
}

// DerivationsTotalSum returns the total derivation count across every
// stage, for callers (the health handler) that only need an aggregate.
func (m *Metrics) DerivationsTotalSum() uint64 {
	return sumCounterVec(m.DerivationsTotal)
}

// SealsTotalSum returns the total seal count across every realm.
func (m *Metrics) SealsTotalSum() uint64 {
	return sumCounterVec(m.SealsTotal)
}

// OpensTotalSum returns the total successful open count across every realm.
func (m *Metrics) OpensTotalSum() uint64 {
	return sumCounterVec(m.OpensTotal)
}

// sumCounterVec adds up every label combination a CounterVec has observed.
func sumCounterVec(cv *prometheus.CounterVec) uint64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		var d dto.Metric
		if err := metric.Write(&d); err == nil {
			total += d.GetCounter().GetValue()
		}
	}
	return uint64(total)
}

// RecordPolicyReload records a manifest reload attempt outcome.
func (m *Metrics) RecordPolicyReload(ok bool) {
	if ok {
		m.PolicyReloadsTotal.Inc()
		return
	}
	m.PolicyReloadFailures.Inc()
}
