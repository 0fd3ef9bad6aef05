package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaftLogAppendAndLookup(t *testing.T) {
	l := newRaftLog(0, 0)
	l.append(LogEntry{Term: 1, Index: 1, Kind: EntryCommand, Data: []byte("a")})
	l.append(LogEntry{Term: 1, Index: 2, Kind: EntryCommand, Data: []byte("b")})
	l.append(LogEntry{Term: 2, Index: 3, Kind: EntryCommand, Data: []byte("c")})

	assert.Equal(t, Index(3), l.lastIndex())
	assert.Equal(t, Term(2), l.lastTerm())

	term, ok := l.termAt(2)
	require.True(t, ok)
	assert.Equal(t, Term(1), term)

	_, ok = l.termAt(99)
	assert.False(t, ok)
}

func TestRaftLogTruncateSuffixFrom(t *testing.T) {
	l := newRaftLog(0, 0)
	for i := Index(1); i <= 5; i++ {
		l.append(LogEntry{Term: 1, Index: i})
	}
	l.truncateSuffixFrom(3)
	assert.Equal(t, Index(2), l.lastIndex())
	_, ok := l.entryAt(3)
	assert.False(t, ok)
}

func TestRaftLogCompactPrefixKeepsTrailingEntries(t *testing.T) {
	l := newRaftLog(0, 0)
	for i := Index(1); i <= 10; i++ {
		l.append(LogEntry{Term: 1, Index: i})
	}
	l.compactPrefix(6, 1)

	assert.Equal(t, Index(6), l.offset)
	_, ok := l.entryAt(5)
	assert.False(t, ok)
	e, ok := l.entryAt(7)
	require.True(t, ok)
	assert.Equal(t, Index(7), e.Index)
	assert.Equal(t, Index(10), l.lastIndex())
}

func TestRaftLogSliceRespectsByteBudgetButAlwaysReturnsOne(t *testing.T) {
	l := newRaftLog(0, 0)
	l.append(LogEntry{Term: 1, Index: 1, Data: make([]byte, 50)})
	l.append(LogEntry{Term: 1, Index: 2, Data: make([]byte, 50)})
	l.append(LogEntry{Term: 1, Index: 3, Data: make([]byte, 50)})

	entries := l.slice(1, 10)
	require.Len(t, entries, 1, "a single oversized entry must still be sent alone")

	entries = l.slice(1, 120)
	assert.Len(t, entries, 2)
}
