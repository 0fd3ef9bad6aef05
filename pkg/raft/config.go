package raft

import "fmt"

// Config holds the tunable options of one Raft participant.
type Config struct {
	ID ServerID

	// ElectionTick is the minimum number of ticks a follower waits without
	// hearing from a leader before starting an election. The effective
	// timeout is randomized over [ElectionTick, 2*ElectionTick) per
	// follower, to reduce split votes.
	ElectionTick int
	// HeartbeatTick is the number of ticks between a leader's heartbeats to
	// each follower. By convention, ElectionTick/5.
	HeartbeatTick int

	// SnapshotThreshold triggers a state-machine snapshot once this many
	// entries have been applied since the last snapshot.
	SnapshotThreshold uint64
	// SnapshotTrailing is the number of entries kept after a snapshot, to
	// help a lagging follower avoid an immediate snapshot transfer.
	SnapshotTrailing uint64
	// AppendRequestThreshold caps the payload size, in bytes of command
	// data, of a single append_entries request.
	AppendRequestThreshold int
	// MaxLogSize is the in-memory log size at which new submissions are
	// refused until a snapshot reduces it. Must exceed SnapshotTrailing.
	MaxLogSize int
	// EnablePrevoting toggles the pre-vote round before a real election.
	EnablePrevoting bool
}

// DefaultConfig returns the default option set for the given server id.
func DefaultConfig(id ServerID) Config {
	return Config{
		ID:                     id,
		ElectionTick:           10,
		HeartbeatTick:          2,
		SnapshotThreshold:      1024,
		SnapshotTrailing:       200,
		AppendRequestThreshold: 100_000,
		MaxLogSize:             5000,
		EnablePrevoting:        true,
	}
}

// Validate checks the invariants the option table requires.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("raft: config.ID must not be empty")
	}
	if c.ElectionTick <= 0 {
		return fmt.Errorf("raft: election_tick must be positive")
	}
	if c.HeartbeatTick <= 0 || c.HeartbeatTick >= c.ElectionTick {
		return fmt.Errorf("raft: heartbeat_tick (%d) must be positive and less than election_tick (%d)", c.HeartbeatTick, c.ElectionTick)
	}
	if c.MaxLogSize <= int(c.SnapshotTrailing) {
		return fmt.Errorf("raft: max_log_size (%d) must exceed snapshot_trailing (%d)", c.MaxLogSize, c.SnapshotTrailing)
	}
	return nil
}
