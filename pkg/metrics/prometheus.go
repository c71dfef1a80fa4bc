package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/khenidak/crossdc/pkg/types"
)

const defaultNamespace = "crossdc"

// PrometheusCollector implements types.MetricsCollector and types.Observer.
// Metrics are registered lazily on first use.
type PrometheusCollector struct {
	reg        prometheus.Registerer
	namespace  string
	dataCenter string
	once       sync.Once
	lock       sync.Mutex

	cycles           *prometheus.CounterVec
	electAttempts    *prometheus.CounterVec
	updateFailures   *prometheus.CounterVec
	refreshFailures  *prometheus.CounterVec
	electExhausted   *prometheus.CounterVec
	electDelay       *prometheus.HistogramVec
	leaseState       *prometheus.GaugeVec
	leaseRemaining   *prometheus.GaugeVec
	leaderInfo       *prometheus.GaugeVec
	isLeader         *prometheus.GaugeVec
	lastKnownLeaders map[string]string
}

var (
	_ types.MetricsCollector = (*PrometheusCollector)(nil)
	_ types.Observer         = (*PrometheusCollector)(nil)
)

// NewPrometheus creates a collector. reg defaults to prometheus.DefaultRegisterer
// and namespace to "crossdc". dataCenter feeds the is_leader gauge.
func NewPrometheus(reg prometheus.Registerer, namespace string, dataCenter string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}

	return &PrometheusCollector{
		reg:              reg,
		namespace:        namespace,
		dataCenter:       dataCenter,
		lastKnownLeaders: make(map[string]string),
	}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "cycles_total",
			Help:      "Total election cycles by whether an election was attempted.",
		}, []string{"election", "elected"})

		p.electAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "elect_attempts_total",
			Help:      "Total conditional lease update attempts.",
		}, []string{"election"})

		p.updateFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "update_failures_total",
			Help:      "Total failed conditional lease updates by reason (condition,error).",
		}, []string{"election", "reason"})

		p.refreshFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "refresh_failures_total",
			Help:      "Total failed lease reads.",
		}, []string{"election"})

		p.electExhausted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "elect_exhausted_total",
			Help:      "Total elections that ran out of retries without an active lease.",
		}, []string{"election"})

		p.electDelay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "elect_delay_seconds",
			Help:      "Jittered delay applied before electing.",
			Buckets:   []float64{0, 1, 2.5, 5, 10, 15, 20, 25, 30},
		}, []string{"election"})

		p.leaseState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "state",
			Help:      "Observed lease state (0 absent, 1 active, 2 expired).",
		}, []string{"election"})

		p.leaseRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "remaining_seconds",
			Help:      "Remaining validity of the active lease.",
		}, []string{"election"})

		p.leaderInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      "leader_info",
			Help:      "Set to 1 for the currently announced leader.",
		}, []string{"election", "leader"})

		p.isLeader = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      "is_leader",
			Help:      "1 when the announced leader is this data center.",
		}, []string{"election"})

		p.reg.MustRegister(
			p.cycles,
			p.electAttempts,
			p.updateFailures,
			p.refreshFailures,
			p.electExhausted,
			p.electDelay,
			p.leaseState,
			p.leaseRemaining,
			p.leaderInfo,
			p.isLeader,
		)
	})
}

func (p *PrometheusCollector) RecordCycle(electionName string, elected bool) {
	p.ensureRegistered()
	label := "false"
	if elected {
		label = "true"
	}
	p.cycles.WithLabelValues(electionName, label).Inc()
}

func (p *PrometheusCollector) RecordElectAttempt(electionName string) {
	p.ensureRegistered()
	p.electAttempts.WithLabelValues(electionName).Inc()
}

func (p *PrometheusCollector) RecordUpdateFailure(electionName string, conditionFailed bool) {
	p.ensureRegistered()
	reason := "error"
	if conditionFailed {
		reason = "condition"
	}
	p.updateFailures.WithLabelValues(electionName, reason).Inc()
}

func (p *PrometheusCollector) RecordRefreshFailure(electionName string) {
	p.ensureRegistered()
	p.refreshFailures.WithLabelValues(electionName).Inc()
}

func (p *PrometheusCollector) RecordElectExhausted(electionName string) {
	p.ensureRegistered()
	p.electExhausted.WithLabelValues(electionName).Inc()
}

func (p *PrometheusCollector) RecordElectDelay(electionName string, delay time.Duration) {
	p.ensureRegistered()
	p.electDelay.WithLabelValues(electionName).Observe(delay.Seconds())
}

func (p *PrometheusCollector) RecordLeaseState(electionName string, state types.LeaseState, remaining time.Duration) {
	p.ensureRegistered()
	p.leaseState.WithLabelValues(electionName).Set(float64(state))
	if remaining < 0 {
		remaining = 0
	}
	p.leaseRemaining.WithLabelValues(electionName).Set(remaining.Seconds())
}

func (p *PrometheusCollector) Observe(electionName string, leader string) {
	p.ensureRegistered()
	p.lock.Lock()
	defer p.lock.Unlock()

	if prev, ok := p.lastKnownLeaders[electionName]; ok && prev != leader {
		p.leaderInfo.DeleteLabelValues(electionName, prev)
	}
	p.lastKnownLeaders[electionName] = leader

	if leader == "" {
		p.isLeader.WithLabelValues(electionName).Set(0)
		return
	}

	p.leaderInfo.WithLabelValues(electionName, leader).Set(1)
	if strings.EqualFold(leader, p.dataCenter) {
		p.isLeader.WithLabelValues(electionName).Set(1)
	} else {
		p.isLeader.WithLabelValues(electionName).Set(0)
	}
}
