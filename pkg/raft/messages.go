package raft

// VoteRequest is the real-vote RPC (Raft paper Figure 2's RequestVote).
type VoteRequest struct {
	Term         Term
	Candidate    ServerID
	LastLogIndex Index
	LastLogTerm  Term
}

// VoteResponse answers a VoteRequest.
type VoteResponse struct {
	Term    Term
	Voter   ServerID
	Granted bool
}

// PreVoteRequest is identical in shape to VoteRequest, but answering it
// never advances the responder's term or records a vote: it only tests
// whether a real election would have a chance of succeeding.
type PreVoteRequest struct {
	Term         Term
	Candidate    ServerID
	LastLogIndex Index
	LastLogTerm  Term
}

// PreVoteResponse answers a PreVoteRequest.
type PreVoteResponse struct {
	Term    Term
	Voter   ServerID
	Granted bool
}

// AppendEntriesRequest replicates log entries and doubles as the
// heartbeat when Entries is empty.
type AppendEntriesRequest struct {
	Term         Term
	Leader       ServerID
	PrevLogIndex Index
	PrevLogTerm  Term
	Entries      []LogEntry
	LeaderCommit Index
}

// AppendEntriesResponse answers an AppendEntriesRequest.
type AppendEntriesResponse struct {
	Term     Term
	Follower ServerID
	Success  bool

	// LastIndexHint is dual-purpose: on success, the follower's new last
	// log index (lets the leader jump nextIndex/matchIndex forward in one
	// round trip instead of one entry at a time); on failure, the first
	// index of ConflictTerm in the follower's log, or the follower's
	// lastIndex+1 if it has no entry at PrevLogIndex at all.
	LastIndexHint Index
	// ConflictTerm is the term of the entry at PrevLogIndex in the
	// follower's log, or zero if the follower's log is simply too short.
	ConflictTerm Term
}

// InstallSnapshotRequest transfers a full state-machine snapshot to a
// follower that has fallen behind the leader's retained log.
type InstallSnapshotRequest struct {
	Term              Term
	Leader            ServerID
	LastIncludedIndex Index
	LastIncludedTerm  Term
	Configuration     Configuration
	Data              []byte
}

// InstallSnapshotResponse answers an InstallSnapshotRequest.
type InstallSnapshotResponse struct {
	Term     Term
	Follower ServerID
	Success  bool
}

// TimeoutNowRequest instructs a follower to start an election immediately,
// bypassing its election timer. Used only for leadership transfer.
type TimeoutNowRequest struct {
	Term   Term
	Leader ServerID
}

// TimeoutNowResponse acknowledges a TimeoutNowRequest.
type TimeoutNowResponse struct {
	Term Term
}
