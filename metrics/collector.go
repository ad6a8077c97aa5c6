// Package metrics exposes Prometheus counters for remote sessions. Every
// method is safe on a nil *Collector, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "remotedesk"

type Collector struct {
	registry *prometheus.Registry

	sessionsStarted  *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
	commandsSent     *prometheus.CounterVec
	commandsExecuted *prometheus.CounterVec
	commandsDropped  *prometheus.CounterVec
	actionsRecorded  prometheus.Counter
	solutionsSaved   prometheus.Counter
	solutionsFailed  prometheus.Counter
	apiRequests      *prometheus.CounterVec
}

// NewCollector registers every metric on a fresh registry so several
// collectors can coexist in one process.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		sessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions created, by role",
		}, []string{"role"}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Session state transitions, by destination state",
		}, []string{"state"}),
		commandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Commands sent by the controller, by channel",
		}, []string{"channel"}),
		commandsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_executed_total",
			Help:      "Commands applied to local input devices, by channel",
		}, []string{"channel"}),
		commandsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dropped_total",
			Help:      "Commands dropped, by reason",
		}, []string{"reason"}),
		actionsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_recorded_total",
			Help:      "Commands captured by the action recorder",
		}),
		solutionsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solutions_saved_total",
			Help:      "Solutions persisted",
		}),
		solutionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solutions_failed_total",
			Help:      "Solution saves rejected by validation or storage",
		}),
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP API requests, by route and status code",
		}, []string{"route", "code"}),
	}
}

// Gatherer is what the /metrics endpoint serves.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

func (c *Collector) SessionStarted(role string) {
	if c == nil {
		return
	}
	c.sessionsStarted.WithLabelValues(role).Inc()
}

func (c *Collector) StateChanged(state string) {
	if c == nil {
		return
	}
	c.stateTransitions.WithLabelValues(state).Inc()
}

func (c *Collector) CommandSent(channel string) {
	if c == nil {
		return
	}
	c.commandsSent.WithLabelValues(channel).Inc()
}

func (c *Collector) CommandExecuted(channel string) {
	if c == nil {
		return
	}
	c.commandsExecuted.WithLabelValues(channel).Inc()
}

func (c *Collector) CommandDropped(reason string) {
	if c == nil {
		return
	}
	c.commandsDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) ActionRecorded() {
	if c == nil {
		return
	}
	c.actionsRecorded.Inc()
}

func (c *Collector) SolutionSaved() {
	if c == nil {
		return
	}
	c.solutionsSaved.Inc()
}

func (c *Collector) SolutionFailed() {
	if c == nil {
		return
	}
	c.solutionsFailed.Inc()
}

func (c *Collector) APIRequest(route, code string) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(route, code).Inc()
}
