package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/raftkit/pkg/raft"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketStable   = []byte("stable")
	bucketLogs     = []byte("logs")
	bucketSnapshot = []byte("snapshot")

	keyTermVote     = []byte("term_vote")
	keySnapshotMeta = []byte("meta")
)

// BoltStore implements Persistence using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt-backed persistence
// store under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "raftkit.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketStable, bucketLogs, bucketSnapshot} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func indexKey(index raft.Index) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(index))
	return b
}

func keyIndex(key []byte) raft.Index {
	return raft.Index(binary.BigEndian.Uint64(key))
}

// Load reconstructs PersistedState from everything durably recorded so
// far.
func (s *BoltStore) Load() (raft.PersistedState, error) {
	var out raft.PersistedState

	err := s.db.View(func(tx *bolt.Tx) error {
		stable := tx.Bucket(bucketStable)
		if data := stable.Get(keyTermVote); data != nil {
			var pv raft.PersistentState
			if err := json.Unmarshal(data, &pv); err != nil {
				return fmt.Errorf("failed to decode term/vote record: %w", err)
			}
			out.CurrentTerm = pv.CurrentTerm
			out.VotedFor = pv.VotedFor
		}

		snap := tx.Bucket(bucketSnapshot)
		if data := snap.Get(keySnapshotMeta); data != nil {
			if err := json.Unmarshal(data, &out.Snapshot); err != nil {
				return fmt.Errorf("failed to decode snapshot record: %w", err)
			}
		}

		logs := tx.Bucket(bucketLogs)
		return logs.ForEach(func(k, v []byte) error {
			var e raft.LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to decode log entry at index %d: %w", keyIndex(k), err)
			}
			out.Entries = append(out.Entries, e)
			return nil
		})
	})
	if err != nil {
		return raft.PersistedState{}, err
	}
	return out, nil
}

// SaveTermVote durably records the current term and vote.
func (s *BoltStore) SaveTermVote(pv raft.PersistentState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(pv)
		if err != nil {
			return fmt.Errorf("failed to encode term/vote record: %w", err)
		}
		return tx.Bucket(bucketStable).Put(keyTermVote, data)
	})
}

// AppendEntries appends entries to the durable log.
func (s *BoltStore) AppendEntries(entries []raft.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs)
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode log entry at index %d: %w", e.Index, err)
			}
			if err := b.Put(indexKey(e.Index), data); err != nil {
				return fmt.Errorf("failed to append log entry at index %d: %w", e.Index, err)
			}
		}
		return nil
	})
}

// TruncateSuffix discards every durable log entry at or after from.
func (s *BoltStore) TruncateSuffix(from raft.Index) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(indexKey(from)); k != nil; k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			toDelete = append(toDelete, key)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to truncate log suffix at index %d: %w", keyIndex(k), err)
			}
		}
		return nil
	})
}

// SaveSnapshot durably records a new snapshot boundary.
func (s *BoltStore) SaveSnapshot(meta raft.SnapshotMeta) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot record: %w", err)
		}
		return tx.Bucket(bucketSnapshot).Put(keySnapshotMeta, data)
	})
}

// TruncatePrefix discards every durable log entry at or before upTo.
func (s *BoltStore) TruncatePrefix(upTo raft.Index) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil && keyIndex(k) <= upTo; k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			toDelete = append(toDelete, key)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to truncate log prefix at index %d: %w", keyIndex(k), err)
			}
		}
		return nil
	})
}
