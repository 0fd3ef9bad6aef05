package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreeNodeClusterElectsExactlyOneLeader(t *testing.T) {
	c := newCluster("a", "b", "c")
	leader := c.electLeader(30)
	require.NotEmpty(t, leader, "expected a leader to emerge")

	leaders := 0
	term := c.fsms[leader].CurrentTerm()
	for id, f := range c.fsms {
		if f.IsLeader() {
			leaders++
			assert.Equal(t, leader, id)
		}
	}
	assert.Equal(t, 1, leaders, "election safety: at most one leader per term")
	assert.Greater(t, term, Term(0))
}

func TestVoteIsGrantedAtMostOncePerTerm(t *testing.T) {
	c := newCluster("a", "b", "c")
	term := Term(1)
	var voted ServerID
	for id := range c.fsms {
		req := &VoteRequest{Term: term, Candidate: "a", LastLogIndex: 0, LastLogTerm: 0}
		f := c.fsms[id]
		f.handleVoteRequest("a", req)
		out := f.GetOutput()
		for _, m := range out.Messages {
			if m.VoteResponse != nil && m.VoteResponse.Granted {
				if voted == "" {
					voted = id
				}
			}
		}
	}

	// A second candidate requesting the same term from the same voters
	// must not also receive a grant: each voter already recorded a vote.
	for id := range c.fsms {
		f := c.fsms[id]
		req := &VoteRequest{Term: term, Candidate: "b", LastLogIndex: 0, LastLogTerm: 0}
		f.handleVoteRequest("b", req)
		out := f.GetOutput()
		for _, m := range out.Messages {
			if m.VoteResponse != nil {
				assert.False(t, m.VoteResponse.Granted, "voter %s must not double-grant in term %d", id, term)
			}
		}
	}
}

func TestPreVoteDoesNotAdvanceTermOnRefusal(t *testing.T) {
	c := newCluster("a", "b", "c")
	follower := c.fsms["b"]
	before := follower.CurrentTerm()

	req := &PreVoteRequest{Term: before + 5, Candidate: "a", LastLogIndex: 0, LastLogTerm: 0}
	follower.handlePreVoteRequest("a", req)

	assert.Equal(t, before, follower.CurrentTerm(), "pre-vote must never mutate current_term")
}

func TestCandidateWithStaleLogLosesElection(t *testing.T) {
	c := newCluster("a", "b", "c")

	// Give b and c one extra log entry that a does not have, then
	// have a with a lower last-log-term campaign: nobody should grant it.
	for _, id := range []ServerID{"b", "c"} {
		f := c.fsms[id]
		f.log.append(LogEntry{Term: 5, Index: 1, Kind: EntryCommand})
	}

	req := &VoteRequest{Term: 6, Candidate: "a", LastLogIndex: 0, LastLogTerm: 0}
	for _, id := range []ServerID{"b", "c"} {
		f := c.fsms[id]
		f.handleVoteRequest("a", req)
		out := f.GetOutput()
		for _, m := range out.Messages {
			if m.VoteResponse != nil {
				assert.False(t, m.VoteResponse.Granted, "%s must refuse a candidate with a stale log", id)
			}
		}
	}
}

func TestSplitVoteResolvesWithoutTermInflationUnderPrevoting(t *testing.T) {
	c := newCluster("a", "b", "c", "d")
	a, b, cand, d := c.fsms["a"], c.fsms["b"], c.fsms["c"], c.fsms["d"]

	// a and d have gone a full minimum election timeout without hearing
	// from any leader, so they will answer pre-vote rounds.
	a.electionElapsed = a.cfg.ElectionTick
	d.electionElapsed = d.cfg.ElectionTick

	// b and c time out on the same tick: both pre-vote rounds run to
	// completion before either real election resolves.
	b.Campaign()
	cand.Campaign()
	require.Equal(t, RolePreCandidate, b.Role())
	require.Equal(t, RolePreCandidate, cand.Role())
	assert.Equal(t, Term(0), b.CurrentTerm(), "pre-voting must not advance the term")

	outB, outC := b.GetOutput(), cand.GetOutput()
	relayTo := func(from ServerID, out Output, voter ServerID) {
		for _, m := range out.Messages {
			if m.To == voter {
				c.fsms[voter].Step(toInbound(from, m))
			}
		}
	}
	answer := func(voter ServerID) {
		c.deliver(voter, c.drain(voter))
	}

	// Both pre-vote rounds reach quorum: a and d grant each, since a
	// pre-vote grant is not a binding vote.
	for _, voter := range []ServerID{"a", "d"} {
		relayTo("b", outB, voter)
		answer(voter)
	}
	require.Equal(t, RoleCandidate, b.Role())
	for _, voter := range []ServerID{"a", "d"} {
		relayTo("c", outC, voter)
		answer(voter)
	}
	require.Equal(t, RoleCandidate, cand.Role())
	require.Equal(t, Term(1), b.CurrentTerm())
	require.Equal(t, Term(1), cand.CurrentTerm())

	// The real votes split two against two: a backs b, d backs c, and
	// neither candidate reaches three of four.
	voteB, voteC := b.GetOutput(), cand.GetOutput()
	relayTo("b", voteB, "a")
	answer("a")
	relayTo("c", voteC, "d")
	answer("d")
	relayTo("b", voteB, "d")
	answer("d")
	relayTo("c", voteC, "a")
	answer("a")

	assert.False(t, b.IsLeader())
	assert.False(t, cand.IsLeader())
	assert.Equal(t, Term(1), b.CurrentTerm(), "a split vote must not inflate terms")

	// b's randomized re-timeout fires first: its second round wins at
	// term 2 while every other server stands. a and d have again gone a
	// full minimum timeout without hearing from any leader.
	a.electionElapsed = a.cfg.ElectionTick
	d.electionElapsed = d.cfg.ElectionTick
	for i := 0; i < 2*b.cfg.ElectionTick && b.Role() == RoleCandidate; i++ {
		b.Tick()
	}
	require.Equal(t, RolePreCandidate, b.Role())
	c.deliver("b", c.drain("b"))
	c.settle()

	leaders := 0
	for _, f := range c.fsms {
		if f.IsLeader() {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)
	assert.True(t, b.IsLeader())
	assert.Equal(t, Term(2), b.CurrentTerm())
}

func TestHigherTermResponseDemotesCandidate(t *testing.T) {
	c := newCluster("a", "b", "c")
	a := c.fsms["a"]
	a.becomeCandidate()
	a.GetOutput()

	higher := a.CurrentTerm() + 10
	a.handleVoteResponse("b", &VoteResponse{Term: higher, Voter: "b", Granted: false})

	assert.Equal(t, RoleFollower, a.Role())
	assert.Equal(t, higher, a.CurrentTerm())
}
