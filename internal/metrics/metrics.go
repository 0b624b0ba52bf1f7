package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardd_events_total",
		Help: "Total number of score events processed by the decision engine",
	})
	suspiciousTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardd_suspicious_windows_total",
		Help: "Total number of windows scored at or above the threshold",
	})
	actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardd_actions_total",
		Help: "Decision outcomes by action (block, blocked_already, failed, dry_run_skip)",
	}, []string{"action"})
	suppressedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardd_suppressed_total",
		Help: "Block attempts suppressed before reaching the hook, by reason",
	}, []string{"reason"})
	hookFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardd_hook_failures_total",
		Help: "Hook invocations that failed or timed out",
	})
	configReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardd_config_reloads_total",
		Help: "Decision config reloads applied",
	})
	configRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardd_config_reloads_rejected_total",
		Help: "Decision config reloads rejected by validation",
	})
	trackedSources = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guardd_tracked_sources",
		Help: "Number of sources with live decision state",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		eventsTotal, suspiciousTotal, actionsTotal, suppressedTotal,
		hookFailuresTotal, configReloadsTotal, configRejectedTotal, trackedSources,
	)
}

// IncEvent increments the processed events counter.
func IncEvent() { eventsTotal.Inc() }

// IncSuspicious increments the suspicious windows counter.
func IncSuspicious() { suspiciousTotal.Inc() }

// IncAction records a decision outcome.
func IncAction(action string) { actionsTotal.WithLabelValues(action).Inc() }

// IncSuppressed records a suppressed block attempt.
func IncSuppressed(reason string) { suppressedTotal.WithLabelValues(reason).Inc() }

// IncHookFailure increments the hook failure counter.
func IncHookFailure() { hookFailuresTotal.Inc() }

// IncConfigReload increments the applied reloads counter.
func IncConfigReload() { configReloadsTotal.Inc() }

// IncConfigReloadRejected increments the rejected reloads counter.
func IncConfigReloadRejected() { configRejectedTotal.Inc() }

// SetTrackedSources updates the live source-state gauge.
func SetTrackedSources(n int) { trackedSources.Set(float64(n)) }
