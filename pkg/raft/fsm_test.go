package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidateRejectsBadOptions(t *testing.T) {
	cfg := DefaultConfig("a")
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.HeartbeatTick = bad.ElectionTick
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxLogSize = int(bad.SnapshotTrailing)
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.ID = ""
	assert.Error(t, bad.Validate())
}

func TestRestartRederivesCommitIndexFromSnapshot(t *testing.T) {
	persisted := PersistedState{
		CurrentTerm: 3,
		Snapshot:    SnapshotMeta{LastIncludedIndex: 7, LastIncludedTerm: 2},
	}
	f := New(DefaultConfig("a"), Configuration{Servers: servers("a", "b", "c")}, persisted, nil)

	assert.Equal(t, Index(7), f.CommitIndex())
	assert.Equal(t, Index(7), f.LastApplied())
	assert.Equal(t, Term(3), f.CurrentTerm())
	assert.Equal(t, Index(7), f.LastLogIndex())
}

func TestRestartReplaysPersistedEntries(t *testing.T) {
	persisted := PersistedState{
		CurrentTerm: 2,
		Entries: []LogEntry{
			{Term: 1, Index: 1, Kind: EntryCommand, Data: []byte("x")},
			{Term: 2, Index: 2, Kind: EntryCommand, Data: []byte("y")},
		},
	}
	f := New(DefaultConfig("a"), Configuration{Servers: servers("a")}, persisted, nil)
	assert.Equal(t, Index(2), f.LastLogIndex())
	assert.Equal(t, Term(2), f.LastLogTerm())
}

func TestStepdownTransfersLeadershipToMostCaughtUpFollower(t *testing.T) {
	c := newCluster("a", "b", "c")
	leaderID := c.electLeader(30)
	leader := c.fsms[leaderID]

	_, _, err := leader.Propose([]byte("v"))
	require.NoError(t, err)
	c.runRounds(5)

	err = leader.Stepdown(10)
	require.NoError(t, err)
	c.runRounds(10)

	newLeaderID, ok := c.leader()
	require.True(t, ok)
	assert.NotEqual(t, leaderID, newLeaderID, "leadership should move off the stepping-down server")
}

func TestOutputIsEmptyReportsNoPendingWork(t *testing.T) {
	var o Output
	assert.True(t, o.IsEmpty())
	o.StepdownTimedOut = true
	assert.False(t, o.IsEmpty())
}
