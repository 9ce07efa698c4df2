package watcher

import "github.com/prometheus/client_golang/prometheus"

var (
	cycleCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "volowatch",
		Subsystem: "watcher",
		Name:      "cycles_total",
		Help:      "Poll cycles by outcome.",
	}, []string{"outcome"})

	activityCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "volowatch",
		Subsystem: "watcher",
		Name:      "activities_total",
		Help:      "Activities seen per cycle, by classification (new, updated, eligible, delivered).",
	}, []string{"class"})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "volowatch",
		Subsystem: "watcher",
		Name:      "skipped_total",
		Help:      "Feed records dropped from a cycle, by kind.",
	}, []string{"kind"})

	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "volowatch",
		Subsystem: "watcher",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one poll cycle.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	stateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "volowatch",
		Subsystem: "watcher",
		Name:      "state",
		Help:      "Poller state (0 bootstrap, 1 idle, 2 polling, 3 fatal).",
	})

	lastSuccessGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "volowatch",
		Subsystem: "watcher",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last cycle that reached the ledger.",
	})
)

func init() {
	prometheus.MustRegister(cycleCounter, activityCounter, skippedCounter, cycleDuration, stateGauge, lastSuccessGauge)
}

func recordCycle(r CycleReport) {
	cycleCounter.WithLabelValues(r.Outcome).Inc()
	cycleDuration.Observe(r.Duration.Seconds())
	activityCounter.WithLabelValues("new").Add(float64(r.New))
	activityCounter.WithLabelValues("updated").Add(float64(r.Updated))
	activityCounter.WithLabelValues("eligible").Add(float64(r.Eligible))
	activityCounter.WithLabelValues("delivered").Add(float64(r.Delivered))
	for _, s := range r.Skipped {
		skippedCounter.WithLabelValues(s.Kind).Inc()
	}
	switch r.Outcome {
	case OutcomeFetchFailed, OutcomeStoreFailed:
	default:
		lastSuccessGauge.Set(float64(r.Started.Add(r.Duration).Unix()))
	}
}

func recordState(s State) {
	stateGauge.Set(float64(s))
}
