package vv

import (
	"errors"

	hashgraph "github.com/RobustRoundRobin/go-hashgraph"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "hashgraph"

	rejectMalformed = "malformed"
	rejectOrphaned  = "orphaned"
	rejectFork      = "fork"
	rejectAncient   = "ancient"
	rejectDuplicate = "duplicate"
)

// Metrics are the consensus counters and gauges. Create them with NewMetrics,
// a nil Registerer gives working but unregistered collectors.
type Metrics struct {
	EventsLinked    prometheus.Counter
	EventsRejected  *prometheus.CounterVec
	OrphansBuffered prometheus.Gauge
	ForksDetected   prometheus.Counter
	EventsCreated   prometheus.Counter

	MaxRound         prometheus.Gauge
	DecidedRound     prometheus.Gauge
	RoundsDecided    prometheus.Counter
	RoundsNoJudges   prometheus.Counter
	CoinVotes        prometheus.Counter
	StalledElections prometheus.Counter

	EventsOrdered prometheus.Counter
	EventsPruned  prometheus.Counter
	EventsStale   prometheus.Counter
	StoreSize     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {

	m := &Metrics{
		EventsLinked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "events_linked_total",
			Help: "Events linked into the graph",
		}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "events_rejected_total",
			Help: "Events not linked, by reason",
		}, []string{"reason"}),
		OrphansBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "orphans_buffered",
			Help: "Events waiting for parents",
		}),
		ForksDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "forks_detected_total",
			Help: "Events sharing a self parent with an already linked event",
		}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "events_created_total",
			Help: "Events created by this node",
		}),
		MaxRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "max_round",
			Help: "Highest round with a known witness",
		}),
		DecidedRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "decided_round",
			Help: "Latest round whose fame is decided",
		}),
		RoundsDecided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rounds_decided_total",
			Help: "Rounds whose witnesses all have decided fame",
		}),
		RoundsNoJudges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rounds_without_judges_total",
			Help: "Decided rounds that produced no judges",
		}),
		CoinVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "coin_votes_total",
			Help: "Votes taken from the coin",
		}),
		StalledElections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "stalled_elections_total",
			Help: "Elections that ran past the configured voting rounds",
		}),
		EventsOrdered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "events_ordered_total",
			Help: "Events given a consensus order",
		}),
		EventsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "events_pruned_total",
			Help: "Ancient events removed from the store",
		}),
		EventsStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "events_stale_total",
			Help: "Events that became ancient without being ordered",
		}),
		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "store_events",
			Help: "Live events in the store",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.EventsLinked, m.EventsRejected, m.OrphansBuffered, m.ForksDetected,
		m.EventsCreated, m.MaxRound, m.DecidedRound, m.RoundsDecided,
		m.RoundsNoJudges, m.CoinVotes, m.StalledElections, m.EventsOrdered,
		m.EventsPruned, m.EventsStale, m.StoreSize,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) rejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

func reasonFor(err error) string {
	if errors.Is(err, hashgraph.ErrForkDetected) {
		return rejectFork
	}
	return rejectMalformed
}
