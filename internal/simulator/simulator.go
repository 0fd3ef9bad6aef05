// Package simulator is a deterministic, in-process cluster harness
// built directly on pkg/raft.FSM: every Tick and message delivery is
// driven by explicit calls rather than wall-clock time, so the
// scenarios in this package's tests reproduce the same outcome on
// every run. The FSM being a pure value-in/values-out function is what
// makes this possible at all: the same histories driven through
// pkg/raftnode's real ticker and goroutines would be racy by nature.
package simulator

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/statemachine"
)

// node pairs one FSM with the state machine its committed entries
// apply to, mirroring the apply half of pkg/raftnode.Node.afterStep
// without any of the I/O.
type node struct {
	fsm       *raft.FSM
	sm        *statemachine.KV
	partition bool
}

// Cluster wires a fixed set of FSMs together over an instantaneous,
// partition-capable network.
type Cluster struct {
	nodes map[raft.ServerID]*node
	conf  raft.Configuration
}

// New builds a Cluster of the given ids, all voters in one
// configuration.
func New(ids ...raft.ServerID) *Cluster {
	var servers []raft.ServerInfo
	for _, id := range ids {
		servers = append(servers, raft.ServerInfo{ID: id, Address: string(id), Voter: true})
	}
	conf := raft.Configuration{Servers: servers}

	c := &Cluster{nodes: make(map[raft.ServerID]*node), conf: conf}
	for i, id := range ids {
		cfg := raft.DefaultConfig(id)
		cfg.ElectionTick = 10
		cfg.HeartbeatTick = 2
		rng := rand.New(rand.NewSource(int64(i) + 1))
		c.nodes[id] = &node{
			fsm: raft.New(cfg, conf, raft.PersistedState{}, rng),
			sm:  statemachine.New(),
		}
	}
	return c
}

// NewWithConfig is like New but accepts a caller-built raft.Config per
// node, for scenarios that need non-default options (the snapshot
// scenario lowers the snapshot threshold and trailing window so that
// compaction happens within a short run).
func NewWithConfig(cfgs map[raft.ServerID]raft.Config) *Cluster {
	ids := make([]raft.ServerID, 0, len(cfgs))
	for id := range cfgs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var servers []raft.ServerInfo
	for _, id := range ids {
		servers = append(servers, raft.ServerInfo{ID: id, Address: string(id), Voter: true})
	}
	conf := raft.Configuration{Servers: servers}

	c := &Cluster{nodes: make(map[raft.ServerID]*node), conf: conf}
	for i, id := range ids {
		rng := rand.New(rand.NewSource(int64(i) + 1))
		c.nodes[id] = &node{
			fsm: raft.New(cfgs[id], conf, raft.PersistedState{}, rng),
			sm:  statemachine.New(),
		}
	}
	return c
}

// AddNode starts a fresh node with an empty log and configuration,
// for scenarios that add a new server via ProposeConfiguration: the new
// member first learns the cluster's configuration from the replicated
// joint-configuration entry itself, the same way a real process joining
// with an empty data directory would.
func (c *Cluster) AddNode(id raft.ServerID) {
	cfg := raft.DefaultConfig(id)
	cfg.ElectionTick = 10
	cfg.HeartbeatTick = 2
	rng := rand.New(rand.NewSource(int64(len(c.nodes)) + 1))
	c.nodes[id] = &node{
		fsm: raft.New(cfg, raft.Configuration{}, raft.PersistedState{}, rng),
		sm:  statemachine.New(),
	}
}

// SeedLog restarts id's FSM from a persisted state carrying entries,
// for scenarios whose precondition is a particular log shape rather
// than a history that produced it. The node comes back as a follower
// at the term of its last entry, the same way a real process restoring
// those entries from storage would. Must be called before any traffic
// involving id.
func (c *Cluster) SeedLog(id raft.ServerID, entries ...raft.LogEntry) {
	n := c.nodes[id]
	cfg := raft.DefaultConfig(id)
	cfg.ElectionTick = 10
	cfg.HeartbeatTick = 2
	var term raft.Term
	if len(entries) > 0 {
		term = entries[len(entries)-1].Term
	}
	persisted := raft.PersistedState{CurrentTerm: term, Entries: entries}
	rng := rand.New(rand.NewSource(int64(len(c.nodes)) + 1))
	n.fsm = raft.New(cfg, c.conf, persisted, rng)
}

// FSM exposes the underlying FSM for a node, for assertions and for
// white-box test hooks the production contract excludes.
func (c *Cluster) FSM(id raft.ServerID) *raft.FSM { return c.nodes[id].fsm }

// StateMachine exposes the underlying state machine for a node.
func (c *Cluster) StateMachine(id raft.ServerID) *statemachine.KV { return c.nodes[id].sm }

// Partition isolates id: messages to and from it are dropped until
// Heal is called.
func (c *Cluster) Partition(id raft.ServerID) { c.nodes[id].partition = true }

// Heal reconnects a previously partitioned node.
func (c *Cluster) Heal(id raft.ServerID) { c.nodes[id].partition = false }

// Tick advances every non-partitioned node's clock by one tick and
// settles the resulting messages.
func (c *Cluster) Tick() {
	for id, n := range c.nodes {
		if n.partition {
			continue
		}
		n.fsm.Tick()
		c.deliver(id, n.fsm.GetOutput())
	}
	c.settle()
}

// Settle delivers every pending message cluster-wide until no node has
// anything left to send.
func (c *Cluster) Settle() { c.settle() }

func (c *Cluster) deliver(from raft.ServerID, out raft.Output) {
	c.apply(from, out)
	if c.nodes[from].partition {
		return
	}
	for _, msg := range out.Messages {
		target, ok := c.nodes[msg.To]
		if !ok || target.partition {
			continue
		}
		target.fsm.Step(toInbound(from, msg))
	}
}

// apply mirrors the state-machine half of pkg/raftnode.Node.afterStep:
// every newly applied entry is handed to the node's KV, NotifyApplied is
// fed back so last_applied can advance, and local or follower snapshots
// are taken or installed against the same KV the committed entries flow
// into.
func (c *Cluster) apply(id raft.ServerID, out raft.Output) {
	n := c.nodes[id]

	if out.LoadSnapshot != nil {
		_ = n.sm.LoadSnapshot(out.LoadSnapshot.Handle)
	}

	if out.Apply != nil {
		for _, e := range out.Apply.Entries {
			_ = n.sm.Apply(e.Data)
		}
		n.fsm.NotifyApplied(out.Apply.Through)
	}

	if out.Snapshot != nil {
		if handle, err := n.sm.TakeSnapshot(); err == nil {
			n.fsm.CompactLog(handle, out.Snapshot.ThroughIndex)
		}
	}
}

func (c *Cluster) settle() {
	for rounds := 0; rounds < 20; rounds++ {
		any := false
		for id, n := range c.nodes {
			if n.partition {
				continue
			}
			out := n.fsm.GetOutput()
			if !out.IsEmpty() {
				any = true
			}
			c.deliver(id, out)
		}
		if !any {
			return
		}
	}
}

func toInbound(from raft.ServerID, s raft.Send) raft.Inbound {
	return raft.Inbound{
		From:                    from,
		VoteRequest:             s.VoteRequest,
		VoteResponse:            s.VoteResponse,
		PreVoteRequest:          s.PreVoteRequest,
		PreVoteResponse:         s.PreVoteResponse,
		AppendEntriesRequest:    s.AppendEntriesRequest,
		AppendEntriesResponse:   s.AppendEntriesResponse,
		InstallSnapshotRequest:  s.InstallSnapshotRequest,
		InstallSnapshotResponse: s.InstallSnapshotResponse,
		TimeoutNowRequest:       s.TimeoutNowRequest,
		TimeoutNowResponse:      s.TimeoutNowResponse,
	}
}

// Leader returns the current leader, if the cluster has settled on
// one.
func (c *Cluster) Leader() (raft.ServerID, bool) {
	for id, n := range c.nodes {
		if n.partition {
			continue
		}
		if n.fsm.IsLeader() {
			return id, true
		}
	}
	return "", false
}

// Leaders returns every node that currently believes it is leader,
// used by the election-safety assertion: in a healthy run this must
// never have more than one entry for the same term.
func (c *Cluster) Leaders() map[raft.ServerID]raft.Term {
	out := make(map[raft.ServerID]raft.Term)
	for id, n := range c.nodes {
		if n.fsm.IsLeader() {
			out[id] = n.fsm.CurrentTerm()
		}
	}
	return out
}

// ElectLeader ticks the cluster until a leader emerges or maxRounds is
// exhausted.
func (c *Cluster) ElectLeader(maxRounds int) (raft.ServerID, error) {
	for i := 0; i < maxRounds; i++ {
		c.Tick()
		if id, ok := c.Leader(); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("simulator: no leader elected within %d ticks", maxRounds)
}

// Propose submits data through id's FSM, which must be the current
// leader, settling the cluster afterward so the entry has a chance to
// replicate.
func (c *Cluster) Propose(id raft.ServerID, data []byte) (raft.Index, raft.Term, error) {
	index, term, err := c.nodes[id].fsm.Propose(data)
	if err != nil {
		return 0, 0, err
	}
	c.settle()
	return index, term, nil
}
