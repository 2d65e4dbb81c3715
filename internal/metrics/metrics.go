package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dialer's operator-facing aggregates. Individual transient
// failures surface only here; operators see events for exhaustions and forced
// releases and metrics for everything else.
//
// All methods are safe on a nil receiver so wiring stays optional in tests.
type Metrics struct {
	dialAttempts    *prometheus.CounterVec
	placementErrors *prometheus.CounterVec
	connects        *prometheus.CounterVec
	voicemails      *prometheus.CounterVec
	exhausted       *prometheus.CounterVec
	forcedReleases  *prometheus.CounterVec
	staleEvents     *prometheus.CounterVec

	queueDepth *prometheus.GaugeVec
	idleAgents *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	m := &Metrics{
		dialAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_dial_attempts_total",
			Help: "Outbound call placements requested from the telephony provider.",
		}, []string{"workspace"}),
		placementErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_placement_errors_total",
			Help: "Call placements rejected by the provider.",
		}, []string{"workspace"}),
		connects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_connects_total",
			Help: "Answered calls bridged to an agent.",
		}, []string{"workspace"}),
		voicemails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_voicemails_total",
			Help: "Calls routed to the voicemail path, by reason.",
		}, []string{"workspace", "reason"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_targets_exhausted_total",
			Help: "Queue items that hit the attempt cap.",
		}, []string{"workspace"}),
		forcedReleases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_forced_releases_total",
			Help: "Stuck agents freed by the reconciler.",
		}, []string{"workspace"}),
		staleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_stale_webhooks_total",
			Help: "Duplicate or out-of-order provider events dropped.",
		}, []string{"workspace"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dialer_queue_depth",
			Help: "Targets currently waiting in the dial queue.",
		}, []string{"workspace"}),
		idleAgents: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dialer_idle_agents",
			Help: "Agents in dialing mode with no call assigned.",
		}, []string{"workspace"}),
	}
	return m
}

func (m *Metrics) DialAttempt(workspace string) {
	if m == nil {
		return
	}
	m.dialAttempts.WithLabelValues(workspace).Inc()
}

func (m *Metrics) PlacementError(workspace string) {
	if m == nil {
		return
	}
	m.placementErrors.WithLabelValues(workspace).Inc()
}

func (m *Metrics) Connect(workspace string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(workspace).Inc()
}

func (m *Metrics) Voicemail(workspace, reason string) {
	if m == nil {
		return
	}
	m.voicemails.WithLabelValues(workspace, reason).Inc()
}

func (m *Metrics) TargetExhausted(workspace string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(workspace).Inc()
}

func (m *Metrics) ForcedRelease(workspace string) {
	if m == nil {
		return
	}
	m.forcedReleases.WithLabelValues(workspace).Inc()
}

func (m *Metrics) StaleWebhook(workspace string) {
	if m == nil {
		return
	}
	m.staleEvents.WithLabelValues(workspace).Inc()
}

func (m *Metrics) SetQueueDepth(workspace string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(workspace).Set(float64(depth))
}

func (m *Metrics) SetIdleAgents(workspace string, n int) {
	if m == nil {
		return
	}
	m.idleAgents.WithLabelValues(workspace).Set(float64(n))
}
