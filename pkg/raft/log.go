package raft

// raftLog is the in-memory suffix of the replicated log that has not
// been compacted into a snapshot. entries[i] holds the entry at index
// offset+1+i; everything at or before offset is summarized by
// snapshotTerm.
type raftLog struct {
	entries      []LogEntry
	offset       Index
	snapshotTerm Term
}

func newRaftLog(snapshotIndex Index, snapshotTerm Term) *raftLog {
	return &raftLog{offset: snapshotIndex, snapshotTerm: snapshotTerm}
}

// lastIndex returns the index of the final entry in the log, or offset
// if the in-memory suffix is empty (everything is covered by the
// snapshot, or the log is entirely empty).
func (l *raftLog) lastIndex() Index {
	if len(l.entries) == 0 {
		return l.offset
	}
	return l.entries[len(l.entries)-1].Index
}

// lastTerm returns the term of the final entry, or snapshotTerm if the
// in-memory suffix is empty.
func (l *raftLog) lastTerm() Term {
	if len(l.entries) == 0 {
		return l.snapshotTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// firstIndex returns the first index the in-memory suffix holds, i.e.
// offset+1. It may not exist if the suffix is empty.
func (l *raftLog) firstIndex() Index {
	return l.offset + 1
}

func (l *raftLog) pos(index Index) (int, bool) {
	if index <= l.offset {
		return 0, false
	}
	i := int(index - l.offset - 1)
	if i < 0 || i >= len(l.entries) {
		return 0, false
	}
	return i, true
}

// termAt returns the term of the entry at index, including the boundary
// case where index is exactly the snapshot's last included index.
func (l *raftLog) termAt(index Index) (Term, bool) {
	if index == l.offset {
		return l.snapshotTerm, true
	}
	i, ok := l.pos(index)
	if !ok {
		return 0, false
	}
	return l.entries[i].Term, true
}

// entryAt returns the entry at index, if it is held in memory.
func (l *raftLog) entryAt(index Index) (LogEntry, bool) {
	i, ok := l.pos(index)
	if !ok {
		return LogEntry{}, false
	}
	return l.entries[i], true
}

// append adds e after the current last entry. Callers must ensure
// e.Index == lastIndex()+1.
func (l *raftLog) append(e LogEntry) {
	l.entries = append(l.entries, e)
}

// truncateSuffixFrom drops every entry at or after from, used when a
// leader's entries conflict with what a follower already holds.
func (l *raftLog) truncateSuffixFrom(from Index) {
	i, ok := l.pos(from)
	if !ok {
		if from <= l.offset {
			l.entries = l.entries[:0]
		}
		return
	}
	l.entries = l.entries[:i]
}

// slice returns a contiguous run of entries starting at from, stopping
// once the cumulative size of Data payloads would exceed maxBytes (a
// zero maxBytes means unbounded). Always returns at least one entry if
// one exists at from.
func (l *raftLog) slice(from Index, maxBytes int) []LogEntry {
	i, ok := l.pos(from)
	if !ok {
		return nil
	}
	var out []LogEntry
	size := 0
	for _, e := range l.entries[i:] {
		if maxBytes > 0 && len(out) > 0 && size+len(e.Data) > maxBytes {
			break
		}
		out = append(out, e)
		size += len(e.Data)
	}
	return out
}

// compactPrefix discards every entry at or before newOffset, recording
// newSnapshotTerm as the term covered by the new snapshot boundary. The
// retained tail is copied into a fresh slice so the discarded prefix's
// backing array can be garbage collected.
func (l *raftLog) compactPrefix(newOffset Index, newSnapshotTerm Term) {
	i, ok := l.pos(newOffset)
	var tail []LogEntry
	if ok {
		tail = make([]LogEntry, len(l.entries)-(i+1))
		copy(tail, l.entries[i+1:])
	} else if newOffset < l.offset {
		tail = l.entries
	}
	l.entries = tail
	l.offset = newOffset
	l.snapshotTerm = newSnapshotTerm
}
