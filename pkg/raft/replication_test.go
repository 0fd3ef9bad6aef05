package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderReplicatesCommandAndAllFollowersApplyIt(t *testing.T) {
	c := newCluster("a", "b", "c")
	leaderID := c.electLeader(30)
	require.NotEmpty(t, leaderID)
	leader := c.fsms[leaderID]

	index, term, err := leader.Propose([]byte("set x=1"))
	require.NoError(t, err)
	require.Greater(t, index, Index(0))

	c.runRounds(5)

	for id, f := range c.fsms {
		assert.GreaterOrEqualf(t, f.CommitIndex(), index, "%s should have committed through the proposal", id)
		e, ok := f.log.entryAt(index)
		require.True(t, ok)
		assert.Equal(t, term, e.Term)
		assert.Equal(t, []byte("set x=1"), e.Data)
	}
}

func TestFollowerRejectsAppendEntriesWithMismatchedPrevLogTerm(t *testing.T) {
	c := newCluster("a", "b")
	follower := c.fsms["b"]
	follower.log.append(LogEntry{Term: 1, Index: 1, Kind: EntryCommand})

	req := &AppendEntriesRequest{
		Term:         2,
		Leader:       "a",
		PrevLogIndex: 1,
		PrevLogTerm:  5,
		Entries:      nil,
		LeaderCommit: 0,
	}
	follower.handleAppendEntries("a", req)
	out := follower.GetOutput()
	require.Len(t, out.Messages, 1)
	resp := out.Messages[0].AppendEntriesResponse
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, Term(1), resp.ConflictTerm)
}

func TestConflictingSuffixIsTruncatedOnAppend(t *testing.T) {
	c := newCluster("a", "b")
	follower := c.fsms["b"]
	follower.log.append(LogEntry{Term: 1, Index: 1, Kind: EntryCommand, Data: []byte("stale")})
	follower.log.append(LogEntry{Term: 1, Index: 2, Kind: EntryCommand, Data: []byte("stale2")})

	req := &AppendEntriesRequest{
		Term:         2,
		Leader:       "a",
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries: []LogEntry{
			{Term: 2, Index: 2, Kind: EntryCommand, Data: []byte("fresh")},
		},
		LeaderCommit: 0,
	}
	follower.handleAppendEntries("a", req)

	e, ok := follower.log.entryAt(2)
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), e.Data)
	assert.Equal(t, Term(2), e.Term)
}

func TestDuplicateAppendEntriesIsANoOp(t *testing.T) {
	c := newCluster("a", "b")
	follower := c.fsms["b"]
	req := &AppendEntriesRequest{
		Term:         1,
		Leader:       "a",
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		Entries:      []LogEntry{{Term: 1, Index: 1, Kind: EntryCommand, Data: []byte("x")}},
		LeaderCommit: 1,
	}
	follower.handleAppendEntries("a", req)
	follower.GetOutput()
	lastBefore := follower.log.lastIndex()
	commitBefore := follower.CommitIndex()

	follower.handleAppendEntries("a", req)
	out := follower.GetOutput()

	assert.Equal(t, lastBefore, follower.log.lastIndex())
	assert.Equal(t, commitBefore, follower.CommitIndex())
	assert.Nil(t, out.Persist, "replaying identical entries must not rewrite storage")
	require.Len(t, out.Messages, 1)
	resp := out.Messages[0].AppendEntriesResponse
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
}

func TestLeaderOnlyCommitsEntryFromItsOwnCurrentTerm(t *testing.T) {
	// A fresh leader holding an uncommitted entry from a previous term
	// must not commit it by counting replicas directly: it only commits
	// transitively, once an entry of the leader's own term reaches
	// quorum.
	cfg := DefaultConfig("a")
	cfg.EnablePrevoting = false
	persisted := PersistedState{
		CurrentTerm: 1,
		Entries:     []LogEntry{{Term: 1, Index: 1, Kind: EntryCommand, Data: []byte("old")}},
	}
	f := New(cfg, Configuration{Servers: servers("a", "b", "c")}, persisted, nil)

	f.Campaign()
	f.GetOutput()
	require.Equal(t, RoleCandidate, f.Role())
	f.handleVoteResponse("b", &VoteResponse{Term: f.CurrentTerm(), Voter: "b", Granted: true})
	require.True(t, f.IsLeader())
	term := f.CurrentTerm()
	dummyIndex := f.LastLogIndex()
	f.GetOutput()

	// b acknowledges only the term-1 entry: a quorum now stores index 1,
	// but it must stay uncommitted.
	f.handleAppendEntriesResponse("b", &AppendEntriesResponse{Term: term, Follower: "b", Success: true, LastIndexHint: 1})
	assert.Equal(t, Index(0), f.CommitIndex(), "a prior-term entry must not commit by direct replica counting")

	// Once b also stores the leader's own-term dummy, both commit.
	f.handleAppendEntriesResponse("b", &AppendEntriesResponse{Term: term, Follower: "b", Success: true, LastIndexHint: dummyIndex})
	assert.Equal(t, dummyIndex, f.CommitIndex())
}

func TestSnapshotRequestedAfterThresholdApplied(t *testing.T) {
	cfg := DefaultConfig("a")
	cfg.SnapshotThreshold = 2
	f := New(cfg, Configuration{Servers: []ServerInfo{{ID: "a", Voter: true}}}, PersistedState{}, nil)
	f.Campaign()
	f.GetOutput()
	require.True(t, f.IsLeader())

	_, _, err := f.Propose([]byte("x"))
	require.NoError(t, err)
	_, _, err = f.Propose([]byte("y"))
	require.NoError(t, err)
	f.GetOutput()
	require.GreaterOrEqual(t, f.CommitIndex(), Index(2))

	f.NotifyApplied(f.CommitIndex())
	out := f.GetOutput()
	require.NotNil(t, out.Snapshot, "applying past the threshold should request a snapshot")
}

func TestCompactLogTrimsPrefixButKeepsTrailingWindow(t *testing.T) {
	f := New(DefaultConfig("a"), Configuration{Servers: []ServerInfo{{ID: "a", Voter: true}}}, PersistedState{}, nil)
	for i := Index(1); i <= 10; i++ {
		f.log.append(LogEntry{Term: 1, Index: i, Kind: EntryCommand})
	}
	f.cfg.SnapshotTrailing = 3

	f.CompactLog([]byte("blob"), 8)

	assert.Equal(t, Index(8), f.SnapshotMetaInfo().LastIncludedIndex)
	_, hasOld := f.log.entryAt(4)
	assert.False(t, hasOld)
	_, hasTrailing := f.log.entryAt(5)
	assert.True(t, hasTrailing)
}
