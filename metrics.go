package savestate

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	puts        prometheus.Counter
	gets        prometheus.Counter
	deletes     prometheus.Counter
	compactions prometheus.Counter
	liveKeys    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "savestate",
			Name:      "puts_total",
			Help:      "Records appended by Put.",
		}),
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "savestate",
			Name:      "gets_total",
			Help:      "Value reads served.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "savestate",
			Name:      "deletes_total",
			Help:      "Tombstones appended by Delete.",
		}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "savestate",
			Name:      "compactions_total",
			Help:      "Completed compactions.",
		}),
		liveKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "savestate",
			Name:      "live_keys",
			Help:      "Keys currently in the keydir.",
		}),
	}
	reg.MustRegister(m.puts, m.gets, m.deletes, m.compactions, m.liveKeys)
	return m
}

func (m *metrics) incPuts() {
	if m != nil {
		m.puts.Inc()
	}
}

func (m *metrics) incGets() {
	if m != nil {
		m.gets.Inc()
	}
}

func (m *metrics) incDeletes() {
	if m != nil {
		m.deletes.Inc()
	}
}

func (m *metrics) incCompactions() {
	if m != nil {
		m.compactions.Inc()
	}
}

func (m *metrics) setLiveKeys(n int) {
	if m != nil {
		m.liveKeys.Set(float64(n))
	}
}
