package raft

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by FSM and driver operations.
var (
	// ErrNotLeader is returned by a write-shaped call on a participant that
	// does not currently believe itself to be leader. Callers should prefer
	// the typed NotLeaderError, which carries a hint, when one is available.
	ErrNotLeader = errors.New("raft: not leader")

	// ErrDroppedEntry means an entry this server accepted at a given
	// (term, index) was overwritten by a later leader before it committed:
	// the caller's proposal will never commit and must be retried.
	ErrDroppedEntry = errors.New("raft: entry dropped before commit")

	// ErrCommitStatusUnknown is returned when a leadership change occurs
	// while a proposal's commit status cannot be determined one way or the
	// other: the caller must query application state to learn the outcome.
	ErrCommitStatusUnknown = errors.New("raft: commit status unknown after leadership change")

	// ErrConfChangeInProgress is returned by ProposeConfiguration when a
	// prior configuration change has not yet finished its joint-consensus
	// transition.
	ErrConfChangeInProgress = errors.New("raft: configuration change already in progress")

	// ErrTimeout is returned by a blocking server-loop call that did not
	// complete within its deadline.
	ErrTimeout = errors.New("raft: operation timed out")

	// ErrStopped is returned by any call made after the server loop has
	// been aborted.
	ErrStopped = errors.New("raft: server stopped")

	// ErrLogFull is returned when a new entry would grow the in-memory log
	// beyond Config.MaxLogSize before a snapshot has had a chance to
	// compact it.
	ErrLogFull = errors.New("raft: log full, awaiting snapshot")

	// ErrIOError is returned to every pending promise when the driver's
	// persistence collaborator fails a durable write. Persistence
	// failures are fatal: the driver aborts rather than continue serving
	// requests against state it only holds in memory.
	ErrIOError = errors.New("raft: persistence failed, server aborting")
)

// NotLeaderError is returned in place of ErrNotLeader whenever the FSM can
// name a better server to retry against.
type NotLeaderError struct {
	// LeaderHint is the last known leader, or "" if none is known.
	LeaderHint ServerID
}

func (e *NotLeaderError) Error() string {
	if e.LeaderHint == "" {
		return "raft: not leader, no known leader"
	}
	return fmt.Sprintf("raft: not leader, try %s", e.LeaderHint)
}

func (e *NotLeaderError) Unwrap() error {
	return ErrNotLeader
}

// Is lets errors.Is(err, ErrNotLeader) match a *NotLeaderError.
func (e *NotLeaderError) Is(target error) bool {
	return target == ErrNotLeader
}
