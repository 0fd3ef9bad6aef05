// Package raftnode implements the server loop that drives a pkg/raft.FSM:
// it owns the single goroutine allowed to call into the FSM, translates
// its Output batches into calls against the storage, transport, and
// state-machine collaborators, and exposes a promise-based client API
// for callers that are not allowed to touch the FSM directly.
package raftnode

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/raftkit/pkg/failuredetector"
	"github.com/cuemby/raftkit/pkg/log"
	"github.com/cuemby/raftkit/pkg/metrics"
	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/storage"
	"github.com/cuemby/raftkit/pkg/transport"
)

// StateMachine is the state_machine collaborator: an applier of
// committed command entries with snapshot support.
type StateMachine interface {
	Apply(data []byte) error
	TakeSnapshot() ([]byte, error)
	LoadSnapshot(data []byte) error
}

// rpcCall is an inbound request that expects a synchronous reply: a
// gRPC server handler blocks on reply until the driver loop produces
// the matching response.
type rpcCall struct {
	in    raft.Inbound
	reply chan raft.Send
}

// commitWaiter is a pending Propose/ProposeConfiguration call awaiting
// its (term, index) to either commit or be superseded by a later term.
type commitWaiter struct {
	term  raft.Term
	index raft.Index
	ch    chan error
}

// readWaiter is a pending ReadBarrier call awaiting its token id to
// surface in ReadsReady or ReadsAborted.
type readWaiter struct {
	id uint64
	ch chan error
}

// Node owns one pkg/raft.FSM and its single-threaded driving loop. All
// FSM access happens on the goroutine started by Start; every other
// method communicates with that goroutine over channels.
type Node struct {
	id  raft.ServerID
	fsm *raft.FSM

	store     storage.Persistence
	transport transport.Transport
	sm        StateMachine
	detector  *failuredetector.Detector

	tickInterval time.Duration

	calls    chan rpcCall
	commands chan func()

	commitWaiters   []*commitWaiter
	appliedWaiters  []*commitWaiter
	readWaiters     []*readWaiter
	stepdownWaiters []chan error

	// appendSentAt tracks when the last non-empty append_entries batch
	// was sent to each peer, so the matching response can report a
	// round-trip latency. Only ever touched from the driving goroutine.
	appendSentAt map[raft.ServerID]time.Time

	// knownPeers mirrors which servers the transport currently has an
	// address registered for, so syncTransportConfiguration only calls
	// AddServer/RemoveServer on an actual membership change instead of
	// on every afterStep. Only touched from the driving goroutine.
	knownPeers map[raft.ServerID]string

	done    chan struct{}
	stopCh  chan struct{}
	mu      sync.Mutex
	stopped bool

	// fatal is set once a persistence write fails: only the driving
	// goroutine ever reads or writes it, so it needs no lock of its own.
	// A fatal Node stops dispatching anything further from the Output it
	// was midway through and stops draining new events.
	fatal bool

	isLeader atomic.Bool
}

// New constructs a Node, restoring FSM and state-machine state from
// store. It does not start the driving goroutine; call Start for that.
func New(cfg raft.Config, configuration raft.Configuration, store storage.Persistence, tp transport.Transport, sm StateMachine, detector *failuredetector.Detector) (*Node, error) {
	persisted, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("raftnode: failed to load persisted state: %w", err)
	}
	if len(persisted.Snapshot.Handle) > 0 {
		if err := sm.LoadSnapshot(persisted.Snapshot.Handle); err != nil {
			return nil, fmt.Errorf("raftnode: failed to load state machine snapshot: %w", err)
		}
	}

	fsm := raft.New(cfg, configuration, persisted, nil)

	n := &Node{
		id:           cfg.ID,
		fsm:          fsm,
		store:        store,
		transport:    tp,
		sm:           sm,
		detector:     detector,
		tickInterval: 100 * time.Millisecond,
		calls:        make(chan rpcCall, 64),
		commands:     make(chan func(), 64),
		appendSentAt: make(map[raft.ServerID]time.Time),
		knownPeers:   make(map[raft.ServerID]string),
		done:         make(chan struct{}),
		stopCh:       make(chan struct{}),
	}
	n.syncTransportConfiguration()
	return n, nil
}

// syncTransportConfiguration diffs the FSM's current configuration
// (both halves, during a joint transition) against knownPeers and tells
// the transport about any server that has newly joined or left, so a
// member added to a running cluster via joint consensus is actually
// reachable without a process restart.
func (n *Node) syncTransportConfiguration() {
	cfg := n.fsm.Configuration()
	want := make(map[raft.ServerID]string, len(cfg.Servers)+len(cfg.Old))
	for _, s := range cfg.Servers {
		want[s.ID] = s.Address
	}
	for _, s := range cfg.Old {
		if _, ok := want[s.ID]; !ok {
			want[s.ID] = s.Address
		}
	}
	for id, addr := range want {
		if known, ok := n.knownPeers[id]; !ok || known != addr {
			if err := n.transport.AddServer(id, addr); err != nil {
				log.WithPeer(string(id)).Error().Err(err).Msg("failed to register transport address")
				continue
			}
			n.knownPeers[id] = addr
		}
	}
	for id := range n.knownPeers {
		if _, ok := want[id]; !ok {
			if err := n.transport.RemoveServer(id); err != nil {
				log.WithPeer(string(id)).Error().Err(err).Msg("failed to remove transport address")
				continue
			}
			delete(n.knownPeers, id)
			if n.detector != nil {
				n.detector.Forget(id)
			}
		}
	}
}

// SetTickInterval overrides the default tick cadence. Must be called
// before Start.
func (n *Node) SetTickInterval(d time.Duration) { n.tickInterval = d }

// Start launches the driving goroutine: a receive loop over transport
// requests and client commands, plus a background ticker.
func (n *Node) Start(ctx context.Context) {
	go n.receiveLoop(ctx)
	go n.tickLoop(ctx)
}

// Abort stops the driving goroutines and fails every outstanding
// promise with ErrStopped.
func (n *Node) Abort() {
	if n.markStopped() {
		<-n.done
	}
}

// markStopped transitions the node to stopped and closes stopCh, unless
// another caller (Abort, or a fatal persistence failure) already did so.
// It reports whether this call performed the transition.
func (n *Node) markStopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return false
	}
	n.stopped = true
	close(n.stopCh)
	return true
}

func (n *Node) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			select {
			case n.commands <- func() { n.fsm.Tick(); n.afterStep(nil) }:
			case <-n.stopCh:
				return
			}
		}
	}
}

// Tick drives a single FSM tick synchronously; test hook for callers
// that do not run the background ticker.
func (n *Node) Tick() {
	done := make(chan struct{})
	n.commands <- func() { n.fsm.Tick(); n.afterStep(nil); close(done) }
	<-done
}

func (n *Node) receiveLoop(ctx context.Context) {
	defer close(n.done)
	defer n.failAllWaiters(raft.ErrStopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case env := <-n.transport.Requests():
			if r := env.Msg.AppendEntriesResponse; r != nil {
				if sentAt, ok := n.appendSentAt[env.From]; ok {
					metrics.AppendLatency.WithLabelValues(string(env.From)).Observe(time.Since(sentAt).Seconds())
					delete(n.appendSentAt, env.From)
				}
			}
			n.fsm.Step(toInbound(env))
			if n.detector != nil {
				n.detector.RecordSeen(env.From)
			}
			n.afterStep(nil)
		case call := <-n.calls:
			call := call
			n.fsm.Step(call.in)
			n.afterStep(&call)
		case cmd := <-n.commands:
			cmd()
		}
		if n.fatal {
			return
		}
	}
}

func toInbound(env transport.Envelope) raft.Inbound {
	m := env.Msg
	return raft.Inbound{
		From:                    env.From,
		VoteRequest:             m.VoteRequest,
		VoteResponse:            m.VoteResponse,
		PreVoteRequest:          m.PreVoteRequest,
		PreVoteResponse:         m.PreVoteResponse,
		AppendEntriesRequest:    m.AppendEntriesRequest,
		AppendEntriesResponse:   m.AppendEntriesResponse,
		InstallSnapshotRequest:  m.InstallSnapshotRequest,
		InstallSnapshotResponse: m.InstallSnapshotResponse,
		TimeoutNowRequest:       m.TimeoutNowRequest,
		TimeoutNowResponse:      m.TimeoutNowResponse,
	}
}

// afterStep drains the FSM's Output and carries out everything it
// describes: persistence first, then message dispatch (diverting the
// one response owed to an in-flight rpcCall, if any, back to its reply
// channel instead of the transport), then apply and snapshot work,
// then promise bookkeeping.
func (n *Node) afterStep(call *rpcCall) {
	if n.fatal {
		return
	}
	out := n.fsm.GetOutput()
	if out.IsEmpty() {
		n.reportMetrics()
		return
	}

	if out.Persist != nil {
		if err := n.persist(out.Persist); err != nil {
			log.WithTerm(uint64(n.fsm.CurrentTerm())).Error().Err(err).
				Msg("persistence failed, aborting server per durability contract")
			n.fatal = true
			n.failAllWaiters(raft.ErrIOError)
			n.markStopped()
			return
		}
	}

	messages := out.Messages
	if call != nil {
		var remaining []raft.Send
		delivered := false
		for _, m := range messages {
			if !delivered && m.To == call.in.From && isResponse(m) {
				call.reply <- m
				delivered = true
				continue
			}
			remaining = append(remaining, m)
		}
		messages = remaining
	}
	for _, m := range messages {
		if n.skipDeadPeer(m) {
			continue
		}
		if m.AppendEntriesRequest != nil && len(m.AppendEntriesRequest.Entries) > 0 {
			n.appendSentAt[m.To] = time.Now()
		}
		if err := n.transport.Send(context.Background(), m); err != nil {
			log.WithPeer(string(m.To)).Error().Err(err).Msg("send failed")
		}
	}

	if out.LoadSnapshot != nil {
		if err := n.sm.LoadSnapshot(out.LoadSnapshot.Handle); err != nil {
			log.Error("failed to load snapshot: " + err.Error())
		}
		metrics.SnapshotsTotal.WithLabelValues("leader").Inc()
	}

	if out.Apply != nil {
		for _, e := range out.Apply.Entries {
			if err := n.sm.Apply(e.Data); err != nil {
				log.Error("apply failed: " + err.Error())
			}
		}
		n.fsm.NotifyApplied(out.Apply.Through)
		n.afterStep(nil)
		if n.fatal {
			return
		}
	}

	if out.Snapshot != nil {
		handle, err := n.sm.TakeSnapshot()
		if err != nil {
			log.Error("snapshot failed: " + err.Error())
		} else {
			n.fsm.CompactLog(handle, out.Snapshot.ThroughIndex)
			metrics.SnapshotsTotal.WithLabelValues("local").Inc()
			n.afterStep(nil)
			if n.fatal {
				return
			}
		}
	}

	for _, id := range out.ReadsReady {
		n.resolveReadWaiter(id, nil)
	}
	for _, id := range out.ReadsAborted {
		n.resolveReadWaiter(id, raft.ErrCommitStatusUnknown)
	}
	if out.RoleChange != nil {
		metrics.SetRole(out.RoleChange.Role.String(), []string{"follower", "pre-candidate", "candidate", "leader"})
		log.WithRole(out.RoleChange.Role.String()).Info().
			Str("leader", string(out.RoleChange.Leader)).Msg("role changed")
		switch out.RoleChange.Role {
		case raft.RoleCandidate:
			metrics.ElectionsTotal.WithLabelValues("started").Inc()
		case raft.RoleLeader:
			metrics.ElectionsTotal.WithLabelValues("won").Inc()
		}
		if out.RoleChange.Role != raft.RoleLeader {
			// This server can no longer observe whether a pending entry
			// commits: a different leader may yet commit it at the same
			// (term, index), or may not. The caller must poll application
			// state to learn the outcome.
			n.failCommitWaiters(raft.ErrCommitStatusUnknown)
		}
		if out.RoleChange.Role == raft.RoleFollower {
			n.resolveStepdownWaiters(nil)
		}
	}
	if out.StepdownTimedOut {
		n.resolveStepdownWaiters(raft.ErrTimeout)
	}

	n.syncTransportConfiguration()
	n.resolveCommitWaiters()
	n.reportMetrics()
}

func (n *Node) persist(p *raft.PersistRequest) error {
	if p.TermVote != nil {
		if err := n.store.SaveTermVote(*p.TermVote); err != nil {
			return fmt.Errorf("failed to save term/vote: %w", err)
		}
	}
	if p.TruncateSuffixFrom != 0 {
		if err := n.store.TruncateSuffix(p.TruncateSuffixFrom); err != nil {
			return fmt.Errorf("failed to truncate log suffix: %w", err)
		}
	}
	if len(p.Entries) > 0 {
		if err := n.store.AppendEntries(p.Entries); err != nil {
			return fmt.Errorf("failed to append entries: %w", err)
		}
	}
	if p.Snapshot != nil {
		if err := n.store.SaveSnapshot(*p.Snapshot); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	if p.TruncatePrefixUpTo != 0 {
		if err := n.store.TruncatePrefix(p.TruncatePrefixUpTo); err != nil {
			return fmt.Errorf("failed to truncate log prefix: %w", err)
		}
	}
	return nil
}

func (n *Node) reportMetrics() {
	metrics.Term.Set(float64(n.fsm.CurrentTerm()))
	metrics.CommitIndex.Set(float64(n.fsm.CommitIndex()))
	metrics.LastApplied.Set(float64(n.fsm.LastApplied()))
	if n.fsm.IsLeader() {
		metrics.IsLeader.Set(1)
		n.isLeader.Store(true)
		last := n.fsm.LastLogIndex()
		for peer, match := range n.fsm.ReplicationProgress() {
			metrics.ReplicationLag.WithLabelValues(string(peer)).Set(float64(last - match))
		}
	} else {
		metrics.IsLeader.Set(0)
		n.isLeader.Store(false)
	}
}

// IsLeader reports this node's last-known leadership state without
// round-tripping through the driving goroutine; callers such as the
// admin API's leader-only interceptor and health checks call this from
// arbitrary goroutines.
func (n *Node) IsLeader() bool { return n.isLeader.Load() }

// skipDeadPeer reports whether m is a large, bandwidth-costly send
// (a non-empty append batch or a snapshot transfer) to a peer the
// failure detector currently believes is down. Heartbeats and
// responses are always sent regardless, so a recovering peer is
// noticed as soon as it answers one.
func (n *Node) skipDeadPeer(m raft.Send) bool {
	if n.detector == nil {
		return false
	}
	switch {
	case m.AppendEntriesRequest != nil && len(m.AppendEntriesRequest.Entries) > 0:
	case m.InstallSnapshotRequest != nil:
	default:
		return false
	}
	return !n.detector.IsAlive(m.To)
}

func isResponse(m raft.Send) bool {
	return m.VoteResponse != nil || m.PreVoteResponse != nil ||
		m.AppendEntriesResponse != nil || m.InstallSnapshotResponse != nil ||
		m.TimeoutNowResponse != nil
}
