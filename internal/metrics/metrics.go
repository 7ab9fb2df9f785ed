package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	CycleCount    prometheus.Counter
	CycleErrors   prometheus.Counter
	EmailsFetched prometheus.Counter
	Outcomes      *prometheus.CounterVec
	LLMCalls      prometheus.Counter
	LLMFailures   prometheus.Counter
	CalendarCalls prometheus.Counter
	CycleDuration prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		CycleCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gym_calendar_agent_cycle_count",
			Help: "Total number of processing cycles started",
		}),
		CycleErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gym_calendar_agent_cycle_errors",
			Help: "Total number of processing cycles aborted by a fatal error",
		}),
		EmailsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gym_calendar_agent_emails_fetched",
			Help: "Total number of unprocessed emails fetched",
		}),
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gym_calendar_agent_outcomes",
			Help: "Per-message processing outcomes by action taken",
		}, []string{"action"}),
		LLMCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gym_calendar_agent_llm_calls",
			Help: "Total number of inference provider calls",
		}),
		LLMFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gym_calendar_agent_llm_failures",
			Help: "Total number of failed inference provider calls",
		}),
		CalendarCalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gym_calendar_agent_calendar_calls",
			Help: "Total number of calendar mutations attempted",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gym_calendar_agent_cycle_duration_seconds",
			Help:    "Time spent per processing cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
