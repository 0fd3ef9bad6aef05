package raft

// Role returns the server's current position in the Raft state machine.
func (f *FSM) Role() Role { return f.role }

// Leader returns the last known leader, or "" if none is known.
func (f *FSM) Leader() ServerID { return f.leader }

// IsLeader reports whether this server currently believes itself to be
// leader.
func (f *FSM) IsLeader() bool { return f.role == RoleLeader }

// CurrentTerm returns the server's current term.
func (f *FSM) CurrentTerm() Term { return f.currentTerm }

// CommitIndex returns the highest log index known to be committed.
func (f *FSM) CommitIndex() Index { return f.commitIndex }

// LastApplied returns the highest log index applied to the state
// machine so far, as reported via NotifyApplied.
func (f *FSM) LastApplied() Index { return f.lastApplied }

// LastLogIndex returns the index of the final entry in the log.
func (f *FSM) LastLogIndex() Index { return f.log.lastIndex() }

// LastLogTerm returns the term of the final entry in the log.
func (f *FSM) LastLogTerm() Term { return f.log.lastTerm() }

// Configuration returns the server's current effective configuration
// (joint, during a membership transition).
func (f *FSM) Configuration() Configuration { return f.configuration }

// ConfigurationChangeInProgress reports whether a prior
// ProposeConfiguration has not yet finalized.
func (f *FSM) ConfigurationChangeInProgress() bool { return f.pendingConfIndex != 0 }

// SnapshotMetaInfo returns the most recent snapshot boundary.
func (f *FSM) SnapshotMetaInfo() SnapshotMeta { return f.snapshot }

// ReplicationProgress returns each peer's last known matched log index,
// as tracked by a leader; it is empty for any other role.
func (f *FSM) ReplicationProgress() map[ServerID]Index {
	if f.role != RoleLeader {
		return nil
	}
	out := make(map[ServerID]Index, len(f.progress))
	for id, p := range f.progress {
		out[id] = p.matchIndex
	}
	return out
}

// TermAtIndex returns the term recorded at index, if this server still
// holds it (either in its in-memory log or as its snapshot boundary).
// A caller that proposed an entry uses this to tell a genuine commit
// of its entry apart from a different entry later occupying the same
// index after a leader change.
func (f *FSM) TermAtIndex(index Index) (Term, bool) {
	return f.log.termAt(index)
}
