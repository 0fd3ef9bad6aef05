package raft

func (f *FSM) tickLeader() {
	f.heartbeatElapsed++
	if f.stepping {
		f.transferElapsed++
		if f.transferElapsed >= f.transferTimeout {
			f.abandonStepdown()
			return
		}
	}
	if f.heartbeatElapsed >= f.cfg.HeartbeatTick {
		f.heartbeatElapsed = 0
		f.heartbeatSeq++
		f.replicateToAll()
	}
}

func (f *FSM) replicateToAll() {
	for _, id := range f.configuration.AllVoters() {
		if id == f.id {
			continue
		}
		f.replicateTo(id)
	}
}

// snapshotRetryHeartbeats is how many heartbeat rounds a leader waits
// for an install_snapshot response before assuming the transfer was
// lost and sending it again.
const snapshotRetryHeartbeats = 5

func (f *FSM) replicateTo(id ServerID) {
	pr, ok := f.progress[id]
	if !ok {
		return
	}
	if pr.snapshotInFlight {
		if f.heartbeatSeq < pr.snapshotSeq+snapshotRetryHeartbeats {
			return
		}
		pr.snapshotInFlight = false
	}
	if pr.nextIndex <= f.log.offset {
		f.sendInstallSnapshot(id, pr)
		return
	}
	prevIndex := pr.nextIndex - 1
	prevTerm, ok := f.log.termAt(prevIndex)
	if !ok {
		f.sendInstallSnapshot(id, pr)
		return
	}
	entries := f.log.slice(pr.nextIndex, f.cfg.AppendRequestThreshold)
	pr.sentSeq = f.heartbeatSeq
	req := AppendEntriesRequest{
		Term:         f.currentTerm,
		Leader:       f.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: f.commitIndex,
	}
	f.send(id, func(s *Send) { s.AppendEntriesRequest = &req })
}

func (f *FSM) sendInstallSnapshot(id ServerID, pr *leaderProgress) {
	pr.snapshotInFlight = true
	pr.snapshotSeq = f.heartbeatSeq
	req := InstallSnapshotRequest{
		Term:              f.currentTerm,
		Leader:            f.id,
		LastIncludedIndex: f.snapshot.LastIncludedIndex,
		LastIncludedTerm:  f.snapshot.LastIncludedTerm,
		Configuration:     f.snapshot.Configuration,
		Data:              f.snapshot.Handle,
	}
	f.send(id, func(s *Send) { s.InstallSnapshotRequest = &req })
}

// conflictHint computes the AppendEntriesResponse rejection hint for a
// follower that does not have a matching entry at prevIndex.
func (f *FSM) conflictHint(prevIndex Index) (Term, Index) {
	if prevIndex > f.log.lastIndex() {
		return 0, f.log.lastIndex() + 1
	}
	term, ok := f.log.termAt(prevIndex)
	if !ok {
		return 0, f.log.firstIndex()
	}
	first := prevIndex
	for {
		t, ok := f.log.termAt(first - 1)
		if !ok || t != term {
			break
		}
		first--
	}
	return term, first
}

func (f *FSM) handleAppendEntries(from ServerID, req *AppendEntriesRequest) {
	f.observeTerm(req.Term)

	if req.Term < f.currentTerm {
		resp := AppendEntriesResponse{Term: f.currentTerm, Follower: f.id, Success: false}
		f.send(from, func(s *Send) { s.AppendEntriesResponse = &resp })
		return
	}
	if f.role == RoleCandidate || f.role == RolePreCandidate {
		f.becomeFollower(req.Leader)
	} else {
		f.role = RoleFollower
		f.leader = req.Leader
	}
	f.resetElectionTimeout()

	if prevTerm, ok := f.log.termAt(req.PrevLogIndex); !ok || prevTerm != req.PrevLogTerm {
		ct, hint := f.conflictHint(req.PrevLogIndex)
		resp := AppendEntriesResponse{Term: f.currentTerm, Follower: f.id, Success: false, ConflictTerm: ct, LastIndexHint: hint}
		f.send(from, func(s *Send) { s.AppendEntriesResponse = &resp })
		return
	}

	next := req.PrevLogIndex
	for _, e := range req.Entries {
		next = e.Index
		if existing, ok := f.log.entryAt(e.Index); ok {
			if existing.Term == e.Term {
				continue
			}
			f.truncateSuffix(e.Index)
		}
		f.appendEntry(e)
	}
	f.recomputeConfigurationFromLog()

	if req.LeaderCommit > f.commitIndex {
		newCommit := req.LeaderCommit
		if last := f.log.lastIndex(); newCommit > last {
			newCommit = last
		}
		f.advanceCommitIndex(newCommit)
	}

	resp := AppendEntriesResponse{Term: f.currentTerm, Follower: f.id, Success: true, LastIndexHint: next}
	f.send(from, func(s *Send) { s.AppendEntriesResponse = &resp })
}

func (f *FSM) handleAppendEntriesResponse(from ServerID, resp *AppendEntriesResponse) {
	if resp.Term > f.currentTerm {
		f.observeTerm(resp.Term)
		return
	}
	if f.role != RoleLeader || resp.Term != f.currentTerm {
		return
	}
	pr, ok := f.progress[from]
	if !ok {
		return
	}
	if !resp.Success {
		if resp.ConflictTerm != 0 {
			idx, found := f.lastIndexOfTerm(resp.ConflictTerm)
			if found {
				pr.nextIndex = idx + 1
			} else {
				pr.nextIndex = resp.LastIndexHint
			}
		} else {
			pr.nextIndex = resp.LastIndexHint
		}
		if pr.nextIndex == 0 {
			pr.nextIndex = 1
		}
		f.replicateTo(from)
		return
	}

	if resp.LastIndexHint > pr.matchIndex {
		pr.matchIndex = resp.LastIndexHint
	}
	pr.nextIndex = pr.matchIndex + 1
	if pr.sentSeq > f.peerAckedSeq[from] {
		f.peerAckedSeq[from] = pr.sentSeq
	}

	f.maybeAdvanceCommitIndex()
	f.checkReadWaiters()
	f.maybeFinishStepdown()

	if pr.matchIndex < f.log.lastIndex() {
		f.replicateTo(from)
	}
}

// lastIndexOfTerm searches the in-memory log for the highest index whose
// term equals term, used to fast-forward nextIndex on conflict.
func (f *FSM) lastIndexOfTerm(term Term) (Index, bool) {
	for i := len(f.log.entries) - 1; i >= 0; i-- {
		if f.log.entries[i].Term == term {
			return f.log.entries[i].Index, true
		}
		if f.log.entries[i].Term < term {
			break
		}
	}
	return 0, false
}

// maybeAdvanceCommitIndex implements the Raft paper's commit rule: a
// leader may only commit an entry from its own current term by counting
// replicas; once that entry commits, every earlier uncommitted entry
// commits along with it, by the Log Matching property.
func (f *FSM) maybeAdvanceCommitIndex() {
	last := f.log.lastIndex()
	for n := last; n > f.commitIndex; n-- {
		term, ok := f.log.termAt(n)
		if !ok || term != f.currentTerm {
			if ok && term < f.currentTerm {
				break
			}
			continue
		}
		match := map[ServerID]Index{f.id: last}
		for id, pr := range f.progress {
			match[id] = pr.matchIndex
		}
		if f.configuration.HasQuorum(match, n) {
			f.advanceCommitIndex(n)
			if f.role == RoleLeader {
				// Followers learn the new commit index now instead of at
				// the next heartbeat.
				f.replicateToAll()
			}
			return
		}
	}
}

func (f *FSM) advanceCommitIndex(n Index) {
	if n <= f.commitIndex {
		return
	}
	from := f.commitIndex
	f.commitIndex = n
	f.queueApply(from, n)
	f.checkConfigurationFinalization(from, n)
	f.checkSelfRemoved(from, n)
}

func (f *FSM) queueApply(from, to Index) {
	var entries []LogEntry
	for i := from + 1; i <= to; i++ {
		e, ok := f.log.entryAt(i)
		if !ok {
			continue
		}
		if e.Kind == EntryCommand {
			entries = append(entries, e)
		}
	}
	if f.out.Apply == nil {
		f.out.Apply = &ApplyRequest{}
	}
	f.out.Apply.Entries = append(f.out.Apply.Entries, entries...)
	if to > f.out.Apply.Through {
		f.out.Apply.Through = to
	}
}

// NotifyApplied is called by the driver once every command through
// index has been handed to the state machine and the call returned.
func (f *FSM) NotifyApplied(through Index) {
	if through > f.lastApplied {
		f.lastApplied = through
	}
	f.checkReadWaiters()
	f.maybeRequestSnapshot()
}

func (f *FSM) maybeRequestSnapshot() {
	if f.lastApplied <= f.snapshot.LastIncludedIndex {
		return
	}
	if uint64(f.lastApplied-f.snapshot.LastIncludedIndex) < f.cfg.SnapshotThreshold {
		return
	}
	f.out.Snapshot = &SnapshotRequest{ThroughIndex: f.lastApplied}
}

// CompactLog is called by the driver once a requested snapshot finishes:
// handle is the opaque state-machine snapshot blob, throughIndex is the
// index it covers.
func (f *FSM) CompactLog(handle []byte, throughIndex Index) {
	term, ok := f.log.termAt(throughIndex)
	if !ok {
		return
	}
	meta := SnapshotMeta{
		LastIncludedIndex: throughIndex,
		LastIncludedTerm:  term,
		Configuration:     f.configuration,
		Handle:            handle,
	}
	f.snapshot = meta

	newOffset := throughIndex
	if f.cfg.SnapshotTrailing > 0 && newOffset > Index(f.cfg.SnapshotTrailing) {
		newOffset -= Index(f.cfg.SnapshotTrailing) + 1
	} else {
		newOffset = 0
	}
	if newOffset > f.log.offset {
		trailTerm, ok := f.log.termAt(newOffset)
		if !ok {
			trailTerm = term
		}
		f.log.compactPrefix(newOffset, trailTerm)
	}

	p := f.ensurePersist()
	p.Snapshot = &meta
	p.TruncatePrefixUpTo = newOffset
}

func (f *FSM) handleInstallSnapshot(from ServerID, req *InstallSnapshotRequest) {
	f.observeTerm(req.Term)
	if req.Term < f.currentTerm {
		resp := InstallSnapshotResponse{Term: f.currentTerm, Follower: f.id, Success: false}
		f.send(from, func(s *Send) { s.InstallSnapshotResponse = &resp })
		return
	}
	f.role = RoleFollower
	f.leader = req.Leader
	f.resetElectionTimeout()

	if req.LastIncludedIndex <= f.snapshot.LastIncludedIndex {
		resp := InstallSnapshotResponse{Term: f.currentTerm, Follower: f.id, Success: true}
		f.send(from, func(s *Send) { s.InstallSnapshotResponse = &resp })
		return
	}

	meta := SnapshotMeta{
		LastIncludedIndex: req.LastIncludedIndex,
		LastIncludedTerm:  req.LastIncludedTerm,
		Configuration:     req.Configuration,
		Handle:            req.Data,
	}
	f.snapshot = meta
	f.configuration = req.Configuration
	f.log = newRaftLog(req.LastIncludedIndex, req.LastIncludedTerm)
	if req.LastIncludedIndex > f.commitIndex {
		f.commitIndex = req.LastIncludedIndex
	}
	if req.LastIncludedIndex > f.lastApplied {
		f.lastApplied = req.LastIncludedIndex
	}

	// The entire stored log is superseded: entries above the snapshot
	// boundary may conflict with the leader's log, and everything at or
	// below it is covered by the snapshot itself.
	p := f.ensurePersist()
	p.TruncateSuffixFrom = req.LastIncludedIndex + 1
	p.Snapshot = &meta
	p.TruncatePrefixUpTo = req.LastIncludedIndex
	f.out.LoadSnapshot = &meta

	resp := InstallSnapshotResponse{Term: f.currentTerm, Follower: f.id, Success: true}
	f.send(from, func(s *Send) { s.InstallSnapshotResponse = &resp })
}

func (f *FSM) handleInstallSnapshotResponse(from ServerID, resp *InstallSnapshotResponse) {
	if resp.Term > f.currentTerm {
		f.observeTerm(resp.Term)
		return
	}
	if f.role != RoleLeader || resp.Term != f.currentTerm {
		return
	}
	pr, ok := f.progress[from]
	if !ok {
		return
	}
	pr.snapshotInFlight = false
	if resp.Success {
		pr.matchIndex = f.snapshot.LastIncludedIndex
		pr.nextIndex = pr.matchIndex + 1
		f.replicateTo(from)
	}
}
