package raft

import "math/rand"

// cluster wires up a fixed set of in-memory FSMs and routes every
// pending message between them without touching a real network: it is
// the unit-test equivalent of the driver loop, used to exercise
// multi-server protocol behavior without pkg/raftnode or pkg/transport.
type cluster struct {
	fsms map[ServerID]*FSM
	conf Configuration
}

func newCluster(ids ...ServerID) *cluster {
	var servers []ServerInfo
	for _, id := range ids {
		servers = append(servers, ServerInfo{ID: id, Address: string(id), Voter: true})
	}
	conf := Configuration{Servers: servers}
	c := &cluster{fsms: make(map[ServerID]*FSM), conf: conf}
	for i, id := range ids {
		cfg := DefaultConfig(id)
		cfg.ElectionTick = 10
		cfg.HeartbeatTick = 2
		rng := rand.New(rand.NewSource(int64(i) + 1))
		c.fsms[id] = New(cfg, conf, PersistedState{}, rng)
	}
	return c
}

// drain returns the pending Output of id's FSM without delivering any of
// its messages, so callers can inspect or route them.
func (c *cluster) drain(id ServerID) Output {
	return c.fsms[id].GetOutput()
}

// deliver routes every message in out to its recipient as an immediate
// Step call, simulating a zero-latency network. Messages addressed to an
// unknown id are skipped.
func (c *cluster) deliver(from ServerID, out Output) {
	for _, msg := range out.Messages {
		target, ok := c.fsms[msg.To]
		if !ok {
			continue
		}
		target.Step(toInbound(from, msg))
	}
}

func toInbound(from ServerID, s Send) Inbound {
	return Inbound{
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

// runRounds ticks every FSM once, then relays whatever messages that
// tick produced until a full round produces nothing new, repeated n
// times. It approximates running the cluster for n heartbeat intervals
// with an instantaneous network.
func (c *cluster) runRounds(n int) {
	for i := 0; i < n; i++ {
		for id, f := range c.fsms {
			f.Tick()
			c.deliver(id, c.drain(id))
		}
		c.settle()
	}
}

// settle relays messages until no FSM has anything left to send, for a
// single logical round of request/response/request exchanges.
func (c *cluster) settle() {
	for rounds := 0; rounds < 10; rounds++ {
		any := false
		for id, f := range c.fsms {
			out := f.GetOutput()
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

func (c *cluster) leader() (ServerID, bool) {
	for id, f := range c.fsms {
		if f.IsLeader() {
			return id, true
		}
	}
	return "", false
}

func (c *cluster) electLeader(maxRounds int) ServerID {
	for i := 0; i < maxRounds; i++ {
		c.runRounds(1)
		if id, ok := c.leader(); ok {
			return id
		}
	}
	return ""
}
