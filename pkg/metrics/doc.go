/*
Package metrics exposes raftkit's Prometheus instrumentation and a
generic component health checker.

# Architecture

	┌────────────────────── METRICS SYSTEM ─────────────────────┐
	│                                                             │
	│  ┌─────────────────┐   ┌──────────────────┐               │
	│  │  Raft gauges    │   │  Raft counters/   │               │
	│  │  term,          │   │  histograms       │               │
	│  │  commit_index,  │   │  elections,       │               │
	│  │  last_applied,  │   │  append latency,  │               │
	│  │  is_leader,     │   │  propose latency, │               │
	│  │  role           │   │  snapshots        │               │
	│  └────────┬────────┘   └─────────┬────────┘               │
	│           └───────────┬──────────┘                         │
	│                       ▼                                    │
	│            prometheus.MustRegister (init)                  │
	│                       │                                     │
	│                       ▼                                    │
	│            metrics.Handler() → promhttp                    │
	└─────────────────────────────────────────────────────────────┘

# Metrics reference

raftkit_term:
  - Type: Gauge
  - Description: Current Raft election term

raftkit_commit_index:
  - Type: Gauge
  - Description: Highest log index known to be committed

raftkit_last_applied:
  - Type: Gauge
  - Description: Highest log index applied to the state machine

raftkit_is_leader:
  - Type: Gauge
  - Description: 1 if this server is the current Raft leader, else 0

raftkit_role{role}:
  - Type: GaugeVec
  - Description: 1 for the server's active role, 0 for the others
  - Example: raftkit_role{role="leader"} 1

raftkit_election_total{outcome}:
  - Type: CounterVec
  - Description: Elections this server participated in, by outcome (started/won)

raftkit_append_latency_seconds{peer}:
  - Type: HistogramVec
  - Description: append_entries round-trip latency observed by the leader, per follower

raftkit_replication_lag{peer}:
  - Type: GaugeVec
  - Description: Entries behind the leader's last log index, per follower

raftkit_snapshot_total{source}:
  - Type: CounterVec
  - Description: Snapshots taken (source="local") or installed from a leader (source="leader")

raftkit_propose_latency_seconds:
  - Type: Histogram
  - Description: Time from Propose to commit (to apply, for wait-applied proposals), as observed by the proposing server

# Health checks

HealthChecker tracks named components (e.g. "raft", "storage", "api")
independently of Prometheus, and HealthHandler/LivenessHandler expose
them as JSON over HTTP for container/orchestrator probes; pkg/api's
HealthServer mounts both and feeds the raft component's state in from
its readiness checks.
*/
package metrics
