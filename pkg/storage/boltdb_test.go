package storage

import (
	"testing"

	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreSaveAndLoadTermVote(t *testing.T) {
	store := openTestStore(t)

	voted := raft.ServerID("node-2")
	require.NoError(t, store.SaveTermVote(raft.PersistentState{CurrentTerm: 5, VotedFor: &voted}))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, raft.Term(5), state.CurrentTerm)
	require.NotNil(t, state.VotedFor)
	assert.Equal(t, voted, *state.VotedFor)
}

func TestBoltStoreAppendAndLoadEntries(t *testing.T) {
	store := openTestStore(t)

	entries := []raft.LogEntry{
		{Term: 1, Index: 1, Kind: raft.EntryCommand, Data: []byte("a")},
		{Term: 1, Index: 2, Kind: raft.EntryCommand, Data: []byte("b")},
		{Term: 2, Index: 3, Kind: raft.EntryCommand, Data: []byte("c")},
	}
	require.NoError(t, store.AppendEntries(entries))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Entries, 3)
	assert.Equal(t, raft.Index(1), state.Entries[0].Index)
	assert.Equal(t, raft.Index(3), state.Entries[2].Index)
}

func TestBoltStoreTruncateSuffix(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AppendEntries([]raft.LogEntry{
		{Term: 1, Index: 1}, {Term: 1, Index: 2}, {Term: 1, Index: 3}, {Term: 1, Index: 4},
	}))

	require.NoError(t, store.TruncateSuffix(3))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Entries, 2)
	assert.Equal(t, raft.Index(2), state.Entries[len(state.Entries)-1].Index)
}

func TestBoltStoreTruncatePrefix(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AppendEntries([]raft.LogEntry{
		{Term: 1, Index: 1}, {Term: 1, Index: 2}, {Term: 1, Index: 3}, {Term: 1, Index: 4},
	}))

	require.NoError(t, store.TruncatePrefix(2))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Entries, 2)
	assert.Equal(t, raft.Index(3), state.Entries[0].Index)
}

func TestBoltStoreSaveAndLoadSnapshot(t *testing.T) {
	store := openTestStore(t)
	meta := raft.SnapshotMeta{
		LastIncludedIndex: 42,
		LastIncludedTerm:  3,
		Configuration:     raft.Configuration{Servers: []raft.ServerInfo{{ID: "a", Voter: true}}},
		Handle:            []byte("blob"),
	}
	require.NoError(t, store.SaveSnapshot(meta))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, meta.LastIncludedIndex, state.Snapshot.LastIncludedIndex)
	assert.Equal(t, meta.Handle, state.Snapshot.Handle)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.AppendEntries([]raft.LogEntry{{Term: 1, Index: 1, Data: []byte("x")}}))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, state.Entries, 1)
	assert.Equal(t, []byte("x"), state.Entries[0].Data)
}
