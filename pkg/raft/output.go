package raft

// Inbound wraps every event Step accepts: exactly one of the message
// fields is non-nil. From identifies the sender for RPC messages and is
// ignored for locally originated events.
type Inbound struct {
	From ServerID

	VoteRequest             *VoteRequest
	VoteResponse            *VoteResponse
	PreVoteRequest          *PreVoteRequest
	PreVoteResponse         *PreVoteResponse
	AppendEntriesRequest    *AppendEntriesRequest
	AppendEntriesResponse   *AppendEntriesResponse
	InstallSnapshotRequest  *InstallSnapshotRequest
	InstallSnapshotResponse *InstallSnapshotResponse
	TimeoutNowRequest       *TimeoutNowRequest
	TimeoutNowResponse      *TimeoutNowResponse
}

// Send wraps every RPC Step produces for the driver to dispatch. Exactly
// one message field is non-nil.
type Send struct {
	To ServerID

	VoteRequest             *VoteRequest
	VoteResponse            *VoteResponse
	PreVoteRequest          *PreVoteRequest
	PreVoteResponse         *PreVoteResponse
	AppendEntriesRequest    *AppendEntriesRequest
	AppendEntriesResponse   *AppendEntriesResponse
	InstallSnapshotRequest  *InstallSnapshotRequest
	InstallSnapshotResponse *InstallSnapshotResponse
	TimeoutNowRequest       *TimeoutNowRequest
	TimeoutNowResponse      *TimeoutNowResponse
}

// PersistRequest describes the durable writes the driver must complete,
// in this order, before acting on anything else in the same Output:
// record TermVote, append Entries (after truncating any conflicting
// suffix from TruncateSuffixFrom), and record Snapshot (after which
// entries at or below TruncatePrefixUpTo may be discarded).
type PersistRequest struct {
	TermVote *PersistentState

	Entries            []LogEntry
	TruncateSuffixFrom Index

	Snapshot           *SnapshotMeta
	TruncatePrefixUpTo Index
}

// ApplyRequest names a contiguous range of newly committed command
// entries for the driver to hand to the state machine, in order. The
// driver must call FSM.NotifyApplied(Through) once the apply completes;
// Through covers the whole committed range, including dummy and
// configuration entries that carry nothing for the state machine.
type ApplyRequest struct {
	Entries []LogEntry
	Through Index
}

// SnapshotRequest asks the driver to take a state-machine snapshot
// covering everything through ThroughIndex.
type SnapshotRequest struct {
	ThroughIndex Index
}

// RoleChange reports a role transition for logging and metrics.
type RoleChange struct {
	Role   Role
	Leader ServerID
}

// Output is everything a single Step or Tick call produced. A driver
// must persist Persist, if non-nil, to stable storage before dispatching
// any entry in Messages: a message that reveals progress the persist
// has not yet made durable would let a crash recovery observe a state
// the rest of the cluster believes already happened.
type Output struct {
	Messages []Send

	Persist *PersistRequest
	Apply   *ApplyRequest

	Snapshot     *SnapshotRequest
	LoadSnapshot *SnapshotMeta

	// ReadsReady carries the opaque read-barrier token ids (from
	// RequestReadBarrier) that are now safe to answer.
	ReadsReady []uint64
	// ReadsAborted carries tokens that can never be satisfied, because
	// this server stepped down from leadership before they were.
	ReadsAborted []uint64

	RoleChange *RoleChange
	// StepdownTimedOut is true when an in-progress Stepdown is abandoned
	// without this server having been demoted: the deadline passed
	// (whether or not TimeoutNow was already sent) or the transferee
	// left the configuration.
	StepdownTimedOut bool
}

// IsEmpty reports whether this Output carries nothing for the driver to
// do, letting callers skip a no-op dispatch cycle.
func (o Output) IsEmpty() bool {
	return len(o.Messages) == 0 &&
		o.Persist == nil &&
		o.Apply == nil &&
		o.Snapshot == nil &&
		o.LoadSnapshot == nil &&
		len(o.ReadsReady) == 0 &&
		len(o.ReadsAborted) == 0 &&
		o.RoleChange == nil &&
		!o.StepdownTimedOut
}
