package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJointConsensusRequiresQuorumOfBothConfigurations(t *testing.T) {
	c := newCluster("a", "b", "c")
	leaderID := c.electLeader(30)
	leader := c.fsms[leaderID]

	_, _, err := leader.ProposeConfiguration([]ServerInfo{
		{ID: "a", Voter: true}, {ID: "b", Voter: true}, {ID: "c", Voter: true}, {ID: "d", Voter: true},
	})
	require.NoError(t, err)
	assert.True(t, leader.Configuration().IsJoint())

	// Add the new voter's FSM so it can actually participate once joined.
	cfg := DefaultConfig("d")
	c.fsms["d"] = New(cfg, leader.Configuration(), PersistedState{}, nil)

	c.runRounds(20)

	assert.False(t, leader.Configuration().IsJoint(), "configuration should finalize to C_new")
	names := map[ServerID]bool{}
	for _, s := range leader.Configuration().Servers {
		names[s.ID] = true
	}
	assert.True(t, names["d"])
	assert.False(t, leader.ConfigurationChangeInProgress())
}

func TestSecondConfigurationChangeRejectedWhileOneInProgress(t *testing.T) {
	c := newCluster("a", "b", "c")
	leaderID := c.electLeader(30)
	leader := c.fsms[leaderID]

	_, _, err := leader.ProposeConfiguration([]ServerInfo{
		{ID: "a", Voter: true}, {ID: "b", Voter: true},
	})
	require.NoError(t, err)

	_, _, err = leader.ProposeConfiguration([]ServerInfo{
		{ID: "a", Voter: true}, {ID: "c", Voter: true},
	})
	assert.ErrorIs(t, err, ErrConfChangeInProgress)
}

func TestNewLeaderFinalizesInheritedJointConfiguration(t *testing.T) {
	// A leader that dies between committing the joint entry and
	// appending C_new leaves the cluster in a joint configuration; its
	// successor must finish the transition on its own, since no future
	// commit will revisit the already committed joint entry.
	joint := Configuration{
		Servers: servers("a", "b", "c"),
		Old:     servers("a", "b"),
	}
	cfg := DefaultConfig("b")
	cfg.EnablePrevoting = false
	persisted := PersistedState{
		CurrentTerm: 1,
		Entries:     []LogEntry{{Term: 1, Index: 1, Kind: EntryConfiguration, Conf: &joint}},
	}
	f := New(cfg, joint, persisted, nil)

	f.Campaign()
	f.GetOutput()
	f.handleVoteResponse("a", &VoteResponse{Term: f.CurrentTerm(), Voter: "a", Granted: true})
	require.True(t, f.IsLeader())
	f.GetOutput()

	// a catches up through the leader's dummy: the joint entry commits
	// transitively, and finalization must follow automatically.
	f.handleAppendEntriesResponse("a", &AppendEntriesResponse{
		Term: f.CurrentTerm(), Follower: "a", Success: true, LastIndexHint: 2,
	})
	f.GetOutput()
	f.handleAppendEntriesResponse("a", &AppendEntriesResponse{
		Term: f.CurrentTerm(), Follower: "a", Success: true, LastIndexHint: f.LastLogIndex(),
	})

	assert.False(t, f.Configuration().IsJoint(), "the inherited joint configuration should finalize to C_new")
	assert.False(t, f.ConfigurationChangeInProgress())
}

func TestLeaderStepsDownWhenRemovedFromCommittedConfiguration(t *testing.T) {
	c := newCluster("a", "b", "c")
	leaderID := c.electLeader(30)
	leader := c.fsms[leaderID]

	var remaining []ServerInfo
	for id := range c.fsms {
		if id != leaderID {
			remaining = append(remaining, ServerInfo{ID: id, Voter: true})
		}
	}

	_, _, err := leader.ProposeConfiguration(remaining)
	require.NoError(t, err)

	c.runRounds(20)

	assert.Equal(t, RoleFollower, leader.Role(), "a leader excluded from the new configuration must step down")
}
