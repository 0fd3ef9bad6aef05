package raftnode

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/raftkit/pkg/metrics"
	"github.com/cuemby/raftkit/pkg/raft"
)

// errStillSettling is internal to waitConfigurationSettled's poll loop.
var errStillSettling = errors.New("raftnode: configuration change still settling")

// WaitType selects when AddEntry's returned promise resolves: once the
// entry is durably committed, or only after the state machine has
// finished applying it.
type WaitType int

const (
	// WaitCommitted resolves as soon as the entry reaches a quorum and
	// the leader's commit index covers it.
	WaitCommitted WaitType = iota
	// WaitApplied resolves only after the state machine has applied the
	// entry, strictly after every earlier entry.
	WaitApplied
)

// Status is a point-in-time snapshot of a Node's Raft state, used by
// the admin API and the CLI's status command.
type Status struct {
	ID             raft.ServerID
	Role           raft.Role
	Leader         raft.ServerID
	CurrentTerm    raft.Term
	CommitIndex    raft.Index
	LastApplied    raft.Index
	Configuration  raft.Configuration
	ChangeInFlight bool
}

// AddEntry proposes a command entry and blocks until it reaches the
// requested wait point, is superseded by a log conflict, or ctx is
// cancelled. wait defaults to WaitCommitted when omitted.
func (n *Node) AddEntry(ctx context.Context, data []byte, wait ...WaitType) (raft.Index, error) {
	timer := metrics.NewTimer()
	waitType := WaitCommitted
	if len(wait) > 0 {
		waitType = wait[0]
	}
	type result struct {
		index raft.Index
		term  raft.Term
		err   error
	}
	resultCh := make(chan result, 1)
	select {
	case n.commands <- func() {
		index, term, err := n.fsm.Propose(data)
		resultCh <- result{index, term, err}
		n.afterStep(nil)
	}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-n.stopCh:
		return 0, raft.ErrStopped
	}

	var r result
	select {
	case r = <-resultCh:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-n.stopCh:
		return 0, raft.ErrStopped
	}
	if r.err != nil {
		return 0, r.err
	}

	if err := n.waitCommit(ctx, r.term, r.index); err != nil {
		return r.index, err
	}
	if waitType == WaitApplied {
		if err := n.waitApplied(ctx, r.term, r.index); err != nil {
			return r.index, err
		}
	}
	timer.ObserveDuration(metrics.ProposeLatency)
	return r.index, nil
}

// SetConfiguration proposes a joint-consensus membership change and
// blocks until the transition fully finalizes.
func (n *Node) SetConfiguration(ctx context.Context, servers []raft.ServerInfo) error {
	type result struct {
		index raft.Index
		term  raft.Term
		err   error
	}
	resultCh := make(chan result, 1)
	select {
	case n.commands <- func() {
		index, term, err := n.fsm.ProposeConfiguration(servers)
		resultCh <- result{index, term, err}
		n.afterStep(nil)
	}:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}

	var r result
	select {
	case r = <-resultCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
	if r.err != nil {
		return r.err
	}
	// The finalization entry lands two indexes after the joint entry
	// once it commits; wait on the joint entry's own commit first, then
	// poll until the change clears, since the exact finalization index
	// is only known once checkConfigurationFinalization appends it.
	if err := n.waitCommit(ctx, r.term, r.index); err != nil {
		return err
	}
	return n.waitConfigurationSettled(ctx)
}

// waitConfigurationSettled polls until the trailing dummy after C_new
// commits. A demotion before that point means this server can no longer
// observe the finalization either way, so the caller gets
// ErrCommitStatusUnknown even though the configuration itself may well
// be durable; that window is inherent to signaling via the dummy entry.
func (n *Node) waitConfigurationSettled(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		result := make(chan error, 1)
		select {
		case n.commands <- func() {
			switch {
			case !n.fsm.IsLeader():
				result <- raft.ErrCommitStatusUnknown
			case !n.fsm.ConfigurationChangeInProgress():
				result <- nil
			default:
				result <- errStillSettling
			}
		}:
		case <-ctx.Done():
			return ctx.Err()
		case <-n.stopCh:
			return raft.ErrStopped
		}
		select {
		case err := <-result:
			if err != errStillSettling {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-n.stopCh:
			return raft.ErrStopped
		}
	}
}

// ReadBarrier blocks until a linearizable read is safe to serve: the
// caller may read its state machine only after this returns nil.
func (n *Node) ReadBarrier(ctx context.Context) error {
	errCh := make(chan error, 1)
	select {
	case n.commands <- func() {
		id, err := n.fsm.RequestReadBarrier()
		if err != nil {
			errCh <- err
			return
		}
		n.readWaiters = append(n.readWaiters, &readWaiter{id: id, ch: errCh})
		n.afterStep(nil)
	}:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
}

// Stepdown transfers leadership to the most caught-up follower. It
// blocks until this server is actually demoted (the transferee won its
// election, or any other higher term arrived), or fails with
// raft.ErrTimeout once timeoutTicks elapse without a demotion.
func (n *Node) Stepdown(ctx context.Context, timeoutTicks int) error {
	errCh := make(chan error, 1)
	select {
	case n.commands <- func() {
		if err := n.fsm.Stepdown(timeoutTicks); err != nil {
			errCh <- err
			return
		}
		n.stepdownWaiters = append(n.stepdownWaiters, errCh)
		n.afterStep(nil)
	}:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
}

// GetStatus returns a point-in-time snapshot of the node's Raft state.
func (n *Node) GetStatus(ctx context.Context) (Status, error) {
	statusCh := make(chan Status, 1)
	select {
	case n.commands <- func() {
		statusCh <- Status{
			ID:             n.id,
			Role:           n.fsm.Role(),
			Leader:         n.fsm.Leader(),
			CurrentTerm:    n.fsm.CurrentTerm(),
			CommitIndex:    n.fsm.CommitIndex(),
			LastApplied:    n.fsm.LastApplied(),
			Configuration:  n.fsm.Configuration(),
			ChangeInFlight: n.fsm.ConfigurationChangeInProgress(),
		}
	}:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-n.stopCh:
		return Status{}, raft.ErrStopped
	}
	select {
	case s := <-statusCh:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// verdictAt decides a waiter's outcome once commit or apply progress has
// crossed its index: nil if the slot still holds the waiter's term,
// ErrDroppedEntry if a different term occupies it. A compacted slot also
// resolves nil — a conflicting overwrite would have demoted this server
// and failed the waiter with ErrCommitStatusUnknown before the snapshot
// could cover it.
func (n *Node) verdictAt(term raft.Term, index raft.Index) error {
	if t, ok := n.fsm.TermAtIndex(index); ok && t != term {
		return raft.ErrDroppedEntry
	}
	return nil
}

// CurrentTerm returns the node's current election term.
func (n *Node) CurrentTerm(ctx context.Context) (raft.Term, error) {
	s, err := n.GetStatus(ctx)
	return s.CurrentTerm, err
}

// Configuration returns the node's current effective membership,
// including both sets while a joint transition is in flight.
func (n *Node) Configuration(ctx context.Context) (raft.Configuration, error) {
	s, err := n.GetStatus(ctx)
	return s.Configuration, err
}

func (n *Node) waitCommit(ctx context.Context, term raft.Term, index raft.Index) error {
	ch := make(chan error, 1)
	select {
	case n.commands <- func() {
		if n.fsm.CommitIndex() >= index {
			ch <- n.verdictAt(term, index)
			return
		}
		n.commitWaiters = append(n.commitWaiters, &commitWaiter{term: term, index: index, ch: ch})
	}:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
}

// waitApplied blocks until index has been handed to the state machine,
// fails with ErrDroppedEntry if a later leader overwrites the slot
// first, or with ErrCommitStatusUnknown if the server loses track of
// the entry's fate (role change, abort) before it is applied.
func (n *Node) waitApplied(ctx context.Context, term raft.Term, index raft.Index) error {
	ch := make(chan error, 1)
	select {
	case n.commands <- func() {
		if n.fsm.LastApplied() >= index {
			ch <- n.verdictAt(term, index)
			return
		}
		n.appliedWaiters = append(n.appliedWaiters, &commitWaiter{term: term, index: index, ch: ch})
	}:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.stopCh:
		return raft.ErrStopped
	}
}

// resolveCommitWaiters re-checks every pending commit waiter against
// the FSM's current commit index and term, called after every Output
// drain since a commit or a term change can unblock or fail any of
// them.
func (n *Node) resolveCommitWaiters() {
	if len(n.commitWaiters) > 0 {
		var remaining []*commitWaiter
		for _, w := range n.commitWaiters {
			switch {
			case n.fsm.CommitIndex() >= w.index:
				w.ch <- n.verdictAt(w.term, w.index)
			case n.fsm.CurrentTerm() > w.term:
				w.ch <- raft.ErrDroppedEntry
			default:
				remaining = append(remaining, w)
				continue
			}
		}
		n.commitWaiters = remaining
	}
	n.resolveAppliedWaiters()
}

// resolveAppliedWaiters mirrors resolveCommitWaiters for WaitApplied
// callers, tracking LastApplied instead of CommitIndex.
func (n *Node) resolveAppliedWaiters() {
	if len(n.appliedWaiters) == 0 {
		return
	}
	var remaining []*commitWaiter
	for _, w := range n.appliedWaiters {
		switch {
		case n.fsm.LastApplied() >= w.index:
			w.ch <- n.verdictAt(w.term, w.index)
		case n.fsm.CurrentTerm() > w.term:
			w.ch <- raft.ErrDroppedEntry
		default:
			remaining = append(remaining, w)
			continue
		}
	}
	n.appliedWaiters = remaining
}

func (n *Node) failCommitWaiters(err error) {
	for _, w := range n.commitWaiters {
		w.ch <- err
	}
	n.commitWaiters = nil
	for _, w := range n.appliedWaiters {
		w.ch <- err
	}
	n.appliedWaiters = nil
}

// resolveStepdownWaiters settles every pending Stepdown call with the
// same verdict: nil once this server has been demoted to follower,
// raft.ErrTimeout when the transfer deadline expired first.
func (n *Node) resolveStepdownWaiters(err error) {
	for _, ch := range n.stepdownWaiters {
		ch <- err
	}
	n.stepdownWaiters = nil
}

func (n *Node) resolveReadWaiter(id uint64, err error) {
	var remaining []*readWaiter
	for _, w := range n.readWaiters {
		if w.id == id {
			w.ch <- err
			continue
		}
		remaining = append(remaining, w)
	}
	n.readWaiters = remaining
}

func (n *Node) failAllWaiters(err error) {
	for _, w := range n.commitWaiters {
		w.ch <- err
	}
	n.commitWaiters = nil
	for _, w := range n.appliedWaiters {
		w.ch <- err
	}
	n.appliedWaiters = nil
	for _, w := range n.readWaiters {
		w.ch <- err
	}
	n.readWaiters = nil
	for _, ch := range n.stepdownWaiters {
		ch <- err
	}
	n.stepdownWaiters = nil
}
