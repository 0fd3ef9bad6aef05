package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func soleLeader(t *testing.T, ids ...ServerID) *FSM {
	t.Helper()
	cfg := DefaultConfig(ids[0])
	cfg.EnablePrevoting = false
	f := New(cfg, Configuration{Servers: servers(ids...)}, PersistedState{}, nil)
	f.Campaign()
	f.GetOutput()
	f.handleVoteResponse(ids[1], &VoteResponse{Term: f.CurrentTerm(), Voter: ids[1], Granted: true})
	require.True(t, f.IsLeader())
	f.GetOutput()
	return f
}

func TestStepdownRefusesProposalsWhileTransferring(t *testing.T) {
	f := soleLeader(t, "a", "b", "c")
	f.handleAppendEntriesResponse("b", &AppendEntriesResponse{
		Term: f.CurrentTerm(), Follower: "b", Success: true, LastIndexHint: f.LastLogIndex(),
	})
	f.GetOutput()

	require.NoError(t, f.Stepdown(10))
	_, _, err := f.Propose([]byte("x"))
	assert.ErrorIs(t, err, ErrNotLeader)
}

func TestStepdownTimesOutWhenTransfereeNeverCatchesUp(t *testing.T) {
	f := soleLeader(t, "a", "b", "c")
	_, _, err := f.Propose([]byte("seed"))
	require.NoError(t, err)
	f.GetOutput()

	// Neither follower has acknowledged the entry, so the TimeoutNow can
	// never be sent; the transfer must expire and leadership resume.
	require.NoError(t, f.Stepdown(3))
	for i := 0; i < 3; i++ {
		f.Tick()
	}
	out := f.GetOutput()
	assert.True(t, out.StepdownTimedOut)
	assert.True(t, f.IsLeader(), "an expired transfer leaves this server leader")

	_, _, err = f.Propose([]byte("x"))
	assert.NoError(t, err, "proposals must be accepted again after the transfer expires")
}

func TestStepdownStaysInProgressUntilDemotion(t *testing.T) {
	f := soleLeader(t, "a", "b", "c")
	f.handleAppendEntriesResponse("b", &AppendEntriesResponse{
		Term: f.CurrentTerm(), Follower: "b", Success: true, LastIndexHint: f.LastLogIndex(),
	})
	f.GetOutput()

	require.NoError(t, f.Stepdown(10))
	out := f.GetOutput()
	var sent bool
	for _, m := range out.Messages {
		if m.TimeoutNowRequest != nil {
			sent = true
			assert.Equal(t, ServerID("b"), m.To)
		}
	}
	require.True(t, sent, "a caught-up transferee should receive TimeoutNow immediately")

	// Still leader, still refusing writes, until the transferee's
	// election actually arrives as a higher term.
	assert.True(t, f.IsLeader())
	_, _, err := f.Propose([]byte("x"))
	assert.ErrorIs(t, err, ErrNotLeader)

	f.Step(Inbound{From: "b", VoteRequest: &VoteRequest{
		Term: f.CurrentTerm() + 1, Candidate: "b",
		LastLogIndex: f.LastLogIndex(), LastLogTerm: f.LastLogTerm(),
	}})
	assert.Equal(t, RoleFollower, f.Role())
}

func TestTimeoutNowBypassesPreVote(t *testing.T) {
	cfg := DefaultConfig("b")
	cfg.EnablePrevoting = true
	f := New(cfg, Configuration{Servers: servers("a", "b", "c")}, PersistedState{}, nil)
	before := f.CurrentTerm()

	f.Step(Inbound{From: "a", TimeoutNowRequest: &TimeoutNowRequest{Term: before, Leader: "a"}})

	assert.Equal(t, RoleCandidate, f.Role(), "a transfer target must skip the pre-vote round")
	assert.Equal(t, before+1, f.CurrentTerm())
}
