package raft

import "math/rand"

// leaderProgress tracks what a leader believes about one follower.
type leaderProgress struct {
	nextIndex  Index
	matchIndex Index

	snapshotInFlight bool
	// snapshotSeq is the heartbeatSeq at which the in-flight snapshot was
	// sent; the transfer is retried once enough heartbeat rounds pass
	// without a response, since the request or its response may be lost.
	snapshotSeq uint64
	// sentSeq is the heartbeatSeq value carried by the most recent
	// append_entries sent to this follower; echoed back so the leader can
	// tell which read-barrier generation an ack satisfies.
	sentSeq uint64
}

// readBarrierWaiter is one outstanding RequestReadBarrier call.
type readBarrierWaiter struct {
	id           uint64
	commitIndex  Index
	heartbeatSeq uint64
}

// FSM is the pure decision core of one Raft participant. See the package
// doc for the purity contract.
type FSM struct {
	id  ServerID
	cfg Config
	rng *rand.Rand

	role        Role
	currentTerm Term
	votedFor    *ServerID
	leader      ServerID

	log           *raftLog
	snapshot      SnapshotMeta
	configuration Configuration

	commitIndex Index
	lastApplied Index

	// election/pre-candidate bookkeeping
	electionElapsed int
	electionTimeout int
	votesGranted    map[ServerID]bool
	preVotesGranted map[ServerID]bool

	// leader-only bookkeeping
	progress          map[ServerID]*leaderProgress
	heartbeatElapsed  int
	heartbeatSeq      uint64
	peerAckedSeq      map[ServerID]uint64
	pendingConfIndex  Index
	readWaiters       []*readBarrierWaiter
	nextReadBarrierID uint64

	// leadership-transfer bookkeeping
	stepping        bool
	transferSent    bool
	transferTarget  ServerID
	transferElapsed int
	transferTimeout int

	out Output
}

// New reconstructs an FSM from persisted state. rng supplies election
// jitter; a nil rng defaults to a fixed seed, which is appropriate only
// for tests — production callers must supply a process-seeded source.
func New(cfg Config, configuration Configuration, persisted PersistedState, rng *rand.Rand) *FSM {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	f := &FSM{
		id:              cfg.ID,
		cfg:             cfg,
		rng:             rng,
		role:            RoleFollower,
		currentTerm:     persisted.CurrentTerm,
		votedFor:        persisted.VotedFor,
		log:             newRaftLog(persisted.Snapshot.LastIncludedIndex, persisted.Snapshot.LastIncludedTerm),
		snapshot:        persisted.Snapshot,
		configuration:   configuration,
		commitIndex:     persisted.Snapshot.LastIncludedIndex,
		lastApplied:     persisted.Snapshot.LastIncludedIndex,
		votesGranted:    make(map[ServerID]bool),
		preVotesGranted: make(map[ServerID]bool),
		peerAckedSeq:    make(map[ServerID]uint64),
	}
	for _, e := range persisted.Entries {
		f.log.append(e)
	}
	f.resetElectionTimeout()
	return f
}

// GetOutput drains and clears the effects accumulated since the last
// call, for the driver to carry out.
func (f *FSM) GetOutput() Output {
	o := f.out
	f.out = Output{}
	return o
}

func (f *FSM) resetElectionTimeout() {
	f.electionElapsed = 0
	span := f.cfg.ElectionTick
	if span <= 0 {
		span = 1
	}
	f.electionTimeout = f.cfg.ElectionTick + f.rng.Intn(span)
}

func (f *FSM) send(to ServerID, build func(*Send)) {
	s := Send{To: to}
	build(&s)
	f.out.Messages = append(f.out.Messages, s)
}

func (f *FSM) ensurePersist() *PersistRequest {
	if f.out.Persist == nil {
		f.out.Persist = &PersistRequest{}
	}
	return f.out.Persist
}

// recordTermVote stages a term/vote change for persistence and applies
// it to in-memory state immediately: readers within the same Step call
// must observe the new term even before the driver persists it.
func (f *FSM) recordTermVote(term Term, votedFor *ServerID) {
	f.currentTerm = term
	f.votedFor = votedFor
	f.ensurePersist().TermVote = &PersistentState{CurrentTerm: term, VotedFor: votedFor}
}

func (f *FSM) appendEntry(e LogEntry) {
	f.log.append(e)
	p := f.ensurePersist()
	p.Entries = append(p.Entries, e)
}

// truncateSuffix drops this server's log at and after from and records
// the truncation for the driver to mirror into stable storage.
func (f *FSM) truncateSuffix(from Index) {
	f.log.truncateSuffixFrom(from)
	p := f.ensurePersist()
	if p.TruncateSuffixFrom == 0 || from < p.TruncateSuffixFrom {
		p.TruncateSuffixFrom = from
	}
}

// observeTerm applies the "higher term wins" rule shared by every RPC
// handler except pre-vote, which must not mutate term/vote state. It
// returns true if a demotion to follower occurred.
func (f *FSM) observeTerm(term Term) bool {
	if term <= f.currentTerm {
		return false
	}
	f.recordTermVote(term, nil)
	demoted := f.role != RoleFollower
	f.becomeFollower("")
	return demoted
}

func (f *FSM) becomeFollower(leader ServerID) {
	wasLeader := f.role == RoleLeader
	f.role = RoleFollower
	f.leader = leader
	f.votesGranted = make(map[ServerID]bool)
	f.preVotesGranted = make(map[ServerID]bool)
	f.progress = nil
	f.stepping = false
	f.transferSent = false
	f.transferTarget = ""
	f.pendingConfIndex = 0
	if wasLeader {
		for _, w := range f.readWaiters {
			f.out.ReadsAborted = append(f.out.ReadsAborted, w.id)
		}
		f.readWaiters = nil
	}
	f.resetElectionTimeout()
	f.out.RoleChange = &RoleChange{Role: f.role, Leader: f.leader}
}

func (f *FSM) becomePreCandidate() {
	f.role = RolePreCandidate
	f.leader = ""
	f.preVotesGranted = map[ServerID]bool{f.id: true}
	f.resetElectionTimeout()
	f.out.RoleChange = &RoleChange{Role: f.role}
	f.broadcastPreVoteRequests()
}

func (f *FSM) becomeCandidate() {
	f.role = RoleCandidate
	f.leader = ""
	f.recordTermVote(f.currentTerm+1, &f.id)
	f.votesGranted = map[ServerID]bool{f.id: true}
	f.resetElectionTimeout()
	f.out.RoleChange = &RoleChange{Role: f.role}
	f.broadcastVoteRequests()
}

func (f *FSM) becomeLeader() {
	f.role = RoleLeader
	f.leader = f.id
	f.progress = make(map[ServerID]*leaderProgress)
	f.peerAckedSeq = make(map[ServerID]uint64)
	f.heartbeatElapsed = 0
	f.heartbeatSeq = 0
	last := f.log.lastIndex()
	for _, id := range f.configuration.AllVoters() {
		if id == f.id {
			continue
		}
		f.progress[id] = &leaderProgress{nextIndex: last + 1, matchIndex: 0}
	}
	// A fresh leader cannot commit entries from earlier terms by counting
	// replicas directly; a no-op dummy in its own term lets them commit
	// transitively. When every entry is already committed there is nothing
	// to force, and the leader's inherited commit index is exact.
	if last > f.commitIndex {
		f.appendEntry(LogEntry{Term: f.currentTerm, Index: last + 1, Kind: EntryDummy})
	}
	f.restorePendingConfState()
	f.out.RoleChange = &RoleChange{Role: f.role, Leader: f.id}
	f.replicateToAll()
	f.maybeAdvanceCommitIndex()
}

// Tick advances the logical clock by one unit.
func (f *FSM) Tick() {
	switch f.role {
	case RoleLeader:
		f.tickLeader()
	default:
		f.tickElection()
	}
}

func (f *FSM) tickElection() {
	f.electionElapsed++
	if f.electionElapsed < f.electionTimeout {
		return
	}
	f.Campaign()
}

// Campaign explicitly triggers the election-timeout transition: either
// starting a pre-vote round, or (if pre-voting is disabled) going
// straight to candidate.
func (f *FSM) Campaign() {
	if f.role == RoleLeader {
		return
	}
	if f.cfg.EnablePrevoting {
		f.becomePreCandidate()
		return
	}
	f.becomeCandidate()
}

// Step applies one inbound event: a message arrival, or an RPC/response.
func (f *FSM) Step(in Inbound) {
	switch {
	case in.VoteRequest != nil:
		f.handleVoteRequest(in.From, in.VoteRequest)
	case in.VoteResponse != nil:
		f.handleVoteResponse(in.From, in.VoteResponse)
	case in.PreVoteRequest != nil:
		f.handlePreVoteRequest(in.From, in.PreVoteRequest)
	case in.PreVoteResponse != nil:
		f.handlePreVoteResponse(in.From, in.PreVoteResponse)
	case in.AppendEntriesRequest != nil:
		f.handleAppendEntries(in.From, in.AppendEntriesRequest)
	case in.AppendEntriesResponse != nil:
		f.handleAppendEntriesResponse(in.From, in.AppendEntriesResponse)
	case in.InstallSnapshotRequest != nil:
		f.handleInstallSnapshot(in.From, in.InstallSnapshotRequest)
	case in.InstallSnapshotResponse != nil:
		f.handleInstallSnapshotResponse(in.From, in.InstallSnapshotResponse)
	case in.TimeoutNowRequest != nil:
		f.handleTimeoutNow(in.From, in.TimeoutNowRequest)
	case in.TimeoutNowResponse != nil:
		// Acknowledged only for symmetry; the leader does not act on it.
	}
}
