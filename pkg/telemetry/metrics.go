package telemetry

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	lserrors "github.com/odvcencio/lockstep/pkg/errors"
)

const namespace = "lockstep"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics groups the lockstep counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Commands   *prometheus.CounterVec
	Snapshots  *prometheus.CounterVec
	Waits      *prometheus.CounterVec
	FlowStores *prometheus.CounterVec
}

// NewMetrics registers the counters on reg. A nil reg registers on the
// default prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands issued through device proxies.",
		}, []string{"command", "outcome"}),
		Snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Visual snapshots captured after recorded commands.",
		}, []string{"outcome"}),
		Waits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waits_total",
			Help:      "Condition waits by final outcome.",
		}, []string{"outcome"}),
		FlowStores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_stores_total",
			Help:      "Flow persistence attempts at session end.",
		}, []string{"outcome"}),
	}
}

// ObserveCommand counts one proxied command.
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, Outcome(err)).Inc()
}

// ObserveSnapshot counts one snapshot capture.
func (m *Metrics) ObserveSnapshot(err error) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(Outcome(err)).Inc()
}

// ObserveWait counts one finished wait.
func (m *Metrics) ObserveWait(err error) {
	if m == nil {
		return
	}
	m.Waits.WithLabelValues(Outcome(err)).Inc()
}

// ObserveFlowStore counts one StoreIfChanged call that reached the store.
func (m *Metrics) ObserveFlowStore(err error) {
	if m == nil {
		return
	}
	m.FlowStores.WithLabelValues(Outcome(err)).Inc()
}

// Outcome maps an error to a label value: "ok" for nil, the lower-cased code
// for lockstep errors, "error" otherwise.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if e, ok := lserrors.As(err); ok {
		return strings.ToLower(string(e.Code))
	}
	return OutcomeError
}
