package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Term is the server's current election term.
	Term = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftkit_term",
			Help: "Current Raft election term",
		},
	)

	// CommitIndex is the highest log index known to be committed.
	CommitIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftkit_commit_index",
			Help: "Highest log index known to be committed",
		},
	)

	// LastApplied is the highest log index applied to the state machine.
	LastApplied = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftkit_last_applied",
			Help: "Highest log index applied to the state machine",
		},
	)

	// IsLeader is 1 when this server believes itself to be leader, 0
	// otherwise.
	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftkit_is_leader",
			Help: "Whether this server is currently the Raft leader (1 = leader, 0 = not)",
		},
	)

	// Role reports the server's current role by name, one gauge per
	// possible role, exactly one of which is set to 1 at a time.
	Role = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raftkit_role",
			Help: "Current Raft role (1 for the active role, 0 for the rest)",
		},
		[]string{"role"},
	)

	// ElectionsTotal counts elections this server has started, by outcome.
	ElectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftkit_election_total",
			Help: "Total number of elections started by this server, by outcome",
		},
		[]string{"outcome"},
	)

	// AppendLatency measures the round trip of an append_entries request
	// this server sent as leader.
	AppendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raftkit_append_latency_seconds",
			Help:    "append_entries round-trip latency as observed by the leader",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"peer"},
	)

	// ReplicationLag is how far behind the leader's last log index each
	// follower's match index currently is.
	ReplicationLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raftkit_replication_lag",
			Help: "Entries behind the leader's last log index, per follower",
		},
		[]string{"peer"},
	)

	// SnapshotsTotal counts snapshots taken, by whether they were
	// installed locally or received from a leader.
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftkit_snapshot_total",
			Help: "Total number of snapshots taken or installed, by source",
		},
		[]string{"source"},
	)

	// ProposeLatency measures the time from Propose to commit (to apply,
	// for WaitApplied callers), as observed by the driver that issued it.
	ProposeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftkit_propose_latency_seconds",
			Help:    "Time from Propose to commit (to apply, for wait-applied proposals), as observed by the proposing server",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(Term)
	prometheus.MustRegister(CommitIndex)
	prometheus.MustRegister(LastApplied)
	prometheus.MustRegister(IsLeader)
	prometheus.MustRegister(Role)
	prometheus.MustRegister(ElectionsTotal)
	prometheus.MustRegister(AppendLatency)
	prometheus.MustRegister(ReplicationLag)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(ProposeLatency)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with
// labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// SetRole records the current role as the one active gauge in the Role
// vec, zeroing whichever role was previously active.
func SetRole(current string, all []string) {
	for _, r := range all {
		if r == current {
			Role.WithLabelValues(r).Set(1)
		} else {
			Role.WithLabelValues(r).Set(0)
		}
	}
}
