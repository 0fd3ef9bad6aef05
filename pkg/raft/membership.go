package raft

// Propose appends a command entry to the leader's log and begins
// replicating it. It returns the (term, index) the caller should later
// match against committed entries to learn the outcome.
func (f *FSM) Propose(data []byte) (Index, Term, error) {
	if f.role != RoleLeader {
		return 0, 0, &NotLeaderError{LeaderHint: f.leader}
	}
	if f.stepping {
		return 0, 0, ErrNotLeader
	}
	if len(f.log.entries)+1 > f.cfg.MaxLogSize {
		return 0, 0, ErrLogFull
	}
	index := f.log.lastIndex() + 1
	f.appendEntry(LogEntry{Term: f.currentTerm, Index: index, Kind: EntryCommand, Data: data})
	f.replicateToAll()
	f.maybeAdvanceCommitIndex()
	return index, f.currentTerm, nil
}

// ProposeConfiguration begins a joint-consensus membership change to
// newServers. It fails if a prior change has not yet finalized.
func (f *FSM) ProposeConfiguration(newServers []ServerInfo) (Index, Term, error) {
	if f.role != RoleLeader {
		return 0, 0, &NotLeaderError{LeaderHint: f.leader}
	}
	if f.stepping {
		return 0, 0, ErrNotLeader
	}
	if f.pendingConfIndex != 0 {
		return 0, 0, ErrConfChangeInProgress
	}
	joint := Configuration{Servers: newServers, Old: f.configuration.Servers}
	index := f.log.lastIndex() + 1
	conf := joint
	f.appendEntry(LogEntry{Term: f.currentTerm, Index: index, Kind: EntryConfiguration, Conf: &conf})
	f.configuration = joint
	f.pendingConfIndex = index
	f.syncProgressWithConfiguration()
	f.replicateToAll()
	f.maybeAdvanceCommitIndex()
	return index, f.currentTerm, nil
}

// syncProgressWithConfiguration adds leader-progress tracking for any
// voter newly introduced by a configuration change. Progress entries of
// departing voters are not removed; quorum math only counts the voters
// of the configuration in effect.
func (f *FSM) syncProgressWithConfiguration() {
	if f.role != RoleLeader {
		return
	}
	last := f.log.lastIndex()
	for _, id := range f.configuration.AllVoters() {
		if id == f.id {
			continue
		}
		if _, ok := f.progress[id]; !ok {
			f.progress[id] = &leaderProgress{nextIndex: last + 1, matchIndex: 0}
		}
	}
}

// recomputeConfigurationFromLog rebuilds the effective configuration
// from the snapshot's base configuration plus every configuration entry
// still held in the in-memory log, in index order. Called after a
// follower truncates or extends its log, since either can invalidate
// whichever configuration entry was previously in effect.
func (f *FSM) recomputeConfigurationFromLog() {
	conf := f.snapshot.Configuration
	for _, e := range f.log.entries {
		if e.Kind == EntryConfiguration && e.Conf != nil {
			conf = *e.Conf
		}
	}
	f.configuration = conf
	if f.role == RoleLeader {
		f.syncProgressWithConfiguration()
	}
}

// checkConfigurationFinalization inspects entries newly committed in
// (from, to] for configuration changes that must be acted on: a
// committed joint configuration is immediately followed by a C_new-only
// entry and a trailing dummy marker; the in-progress flag clears once
// the entry at pendingConfIndex commits (that trailing dummy, or a
// non-joint configuration entry that is itself the pending change).
func (f *FSM) checkConfigurationFinalization(from, to Index) {
	if f.role != RoleLeader {
		return
	}
	for i := from + 1; i <= to; i++ {
		e, ok := f.log.entryAt(i)
		if !ok {
			continue
		}
		if e.Kind == EntryDummy {
			if i == f.pendingConfIndex {
				f.pendingConfIndex = 0
			}
			continue
		}
		if e.Kind != EntryConfiguration || e.Conf == nil {
			continue
		}
		if e.Conf.IsJoint() {
			if f.pendingConfIndex != i {
				continue
			}
			f.finalizeJointConfiguration(*e.Conf)
		} else if i == f.pendingConfIndex {
			f.pendingConfIndex = 0
		}
	}
}

// finalizeJointConfiguration appends the C_new-only entry that ends a
// joint transition whose joint entry has committed, plus the trailing
// dummy marker callers wait on for a commit-time signal.
func (f *FSM) finalizeJointConfiguration(joint Configuration) {
	final := Configuration{Servers: joint.Servers}
	confIndex := f.log.lastIndex() + 1
	conf := final
	f.appendEntry(LogEntry{Term: f.currentTerm, Index: confIndex, Kind: EntryConfiguration, Conf: &conf})
	f.configuration = final
	dummyIndex := confIndex + 1
	f.appendEntry(LogEntry{Term: f.currentTerm, Index: dummyIndex, Kind: EntryDummy})
	f.pendingConfIndex = dummyIndex
	f.syncProgressWithConfiguration()
	f.replicateToAll()
	f.maybeAdvanceCommitIndex()
}

// latestConfEntryIndex returns the index of the newest configuration
// entry still held in the in-memory log, or 0 if there is none.
func (f *FSM) latestConfEntryIndex() Index {
	for i := len(f.log.entries) - 1; i >= 0; i-- {
		if f.log.entries[i].Kind == EntryConfiguration {
			return f.log.entries[i].Index
		}
	}
	return 0
}

// restorePendingConfState rebuilds the change-in-progress bookkeeping a
// fresh leader inherits from its log: a configuration entry beyond the
// commit index resumes as an in-flight change, and a joint configuration
// whose entry already committed under a previous leader is finalized
// here, since no future commit will revisit it.
func (f *FSM) restorePendingConfState() {
	confIdx := f.latestConfEntryIndex()
	if confIdx > f.commitIndex {
		f.pendingConfIndex = confIdx
		return
	}
	f.pendingConfIndex = 0
	if f.configuration.IsJoint() {
		f.finalizeJointConfiguration(f.configuration)
	}
}

// checkSelfRemoved steps a leader down to a bare follower once a
// configuration committed in (from, to] no longer lists it as a voter.
func (f *FSM) checkSelfRemoved(from, to Index) {
	for i := from + 1; i <= to; i++ {
		e, ok := f.log.entryAt(i)
		if !ok || e.Kind != EntryConfiguration || e.Conf == nil {
			continue
		}
		if !e.Conf.ContainsVoter(f.id) {
			f.becomeFollower("")
			return
		}
	}
}
