package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one registry. Tests build their own
// registry so counters don't leak between cases.
type Metrics struct {
	registry *prometheus.Registry

	AdmissionOutcomes *prometheus.CounterVec
	OTPChallenges     *prometheus.CounterVec
	ElectionAPICalls  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AdmissionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voting_admission_outcomes_total",
			Help: "Admission attempts by the state they settled in",
		}, []string{"state"}),
		OTPChallenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voting_otp_challenges_total",
			Help: "OTP issue and verify results",
		}, []string{"op", "result"}),
		ElectionAPICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voting_election_api_calls_total",
			Help: "Calls to the election REST API by operation and result",
		}, []string{"op", "result"}),
	}

	m.registry.MustRegister(
		m.AdmissionOutcomes,
		m.OTPChallenges,
		m.ElectionAPICalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
