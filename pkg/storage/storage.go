// Package storage implements the durable persistence collaborator a
// driver uses to make an FSM's Output.Persist requests survive a
// restart: the term/vote record, the replicated log, and the latest
// snapshot.
package storage

import (
	"github.com/cuemby/raftkit/pkg/raft"
)

// Persistence is the durable-storage collaborator. A driver (pkg/raftnode)
// calls these methods, in the order documented on raft.Output, whenever
// an FSM's Output carries a non-nil Persist.
type Persistence interface {
	// Load reconstructs everything raft.New needs to restore an FSM
	// after a restart.
	Load() (raft.PersistedState, error)

	// SaveTermVote durably records the current term and vote.
	SaveTermVote(raft.PersistentState) error

	// AppendEntries appends entries to the durable log. Entries must be
	// contiguous and follow whatever is already stored.
	AppendEntries(entries []raft.LogEntry) error

	// TruncateSuffix discards every durable log entry at or after from.
	TruncateSuffix(from raft.Index) error

	// SaveSnapshot durably records a new snapshot boundary.
	SaveSnapshot(meta raft.SnapshotMeta) error

	// TruncatePrefix discards every durable log entry at or before upTo.
	TruncatePrefix(upTo raft.Index) error

	// Close releases the underlying storage handle.
	Close() error
}
