// Package metrics holds the Prometheus collectors shared by the engine and
// the agent scheduler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector on a private registry so tests can
// construct isolated instances without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	RebuildsTotal          prometheus.Counter
	RebuildSkipsTotal      prometheus.Counter
	StorageRecoveriesTotal prometheus.Counter
	AgentCyclesTotal       *prometheus.CounterVec
	ProposalsRejectedTotal *prometheus.CounterVec
	ActionsAppliedTotal    *prometheus.CounterVec
}

// New creates a Metrics instance backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RebuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_feed_rebuilds_total",
			Help: "Completed feed materializer rebuilds.",
		}),
		RebuildSkipsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_feed_rebuild_skips_total",
			Help: "Rebuild requests skipped by the reentrancy guard.",
		}),
		StorageRecoveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "murmur_storage_recoveries_total",
			Help: "Documents recovered as empty after a read or parse failure.",
		}),
		AgentCyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_agent_cycles_total",
			Help: "Agent scheduler cycles by outcome.",
		}, []string{"result"}),
		ProposalsRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_agent_proposals_rejected_total",
			Help: "Action proposals dropped by the validator, by reason.",
		}, []string{"reason"}),
		ActionsAppliedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "murmur_agent_actions_applied_total",
			Help: "Validated agent actions applied to the store, by tool.",
		}, []string{"tool"}),
	}
}

// Handler returns the HTTP handler exposing this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
