package killswitch

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "killswitch",
		Name:      "transitions_total",
		Help:      "Confirmed kill switch mode transitions, by resulting mode.",
	}, []string{"mode"})

	transitionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "killswitch",
		Name:      "transition_failures_total",
		Help:      "Failed kill switch transitions, by failure stage.",
	}, []string{"stage"})

	modeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "killswitch",
		Name:      "mode",
		Help:      "Current kill switch mode (0 off, 1 soft, 2 hard).",
	})
)

// RegisterMetrics adds the kill switch collectors to the given registry.
// Call it at most once per registry.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(transitionsTotal, transitionFailures, modeGauge)
}
