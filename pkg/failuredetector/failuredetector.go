// Package failuredetector implements the failure_detector collaborator:
// a heartbeat-staleness test a driver uses to decide whether a peer is
// worth retrying immediately or should be left to the next tick.
package failuredetector

import (
	"sync"
	"time"

	"github.com/cuemby/raftkit/pkg/raft"
)

// Detector tracks the last time each peer was heard from and answers
// IsAlive by comparing that against a staleness threshold. It is safe
// for concurrent use, since a driver's RPC-completion callbacks may run
// on a different goroutine than its tick loop.
type Detector struct {
	mu        sync.Mutex
	threshold time.Duration
	lastSeen  map[raft.ServerID]time.Time
	now       func() time.Time
}

// New creates a Detector that considers a peer dead once threshold has
// elapsed since it was last heard from.
func New(threshold time.Duration) *Detector {
	return &Detector{
		threshold: threshold,
		lastSeen:  make(map[raft.ServerID]time.Time),
		now:       time.Now,
	}
}

// RecordSeen marks id as heard from at the current time: call this on
// every successful RPC response or inbound RPC from a peer.
func (d *Detector) RecordSeen(id raft.ServerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen[id] = d.now()
}

// IsAlive reports whether id has been heard from within the staleness
// threshold. An id never recorded is considered alive, since a driver
// should attempt contact at least once before declaring a peer dead.
func (d *Detector) IsAlive(id raft.ServerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen, ok := d.lastSeen[id]
	if !ok {
		return true
	}
	return d.now().Sub(seen) < d.threshold
}

// Forget removes a peer's tracking state, used when a configuration
// change permanently removes it from the cluster.
func (d *Detector) Forget(id raft.ServerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastSeen, id)
}
