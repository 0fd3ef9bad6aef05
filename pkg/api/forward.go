package api

import (
	"context"
	"errors"

	"github.com/cuemby/raftkit/pkg/log"
	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/raftnode"
)

var _ backend = (*ForwardingBackend)(nil)

// ForwardingBackend wraps a backend (normally *raftnode.Node) and
// retries ReadBarrier against the hinted leader's admin address when
// the local node isn't leader, so a follower still resolves a caller's
// read barrier request instead of making the caller do its own
// leader-discovery and retry.
type ForwardingBackend struct {
	backend
	resolve func(raft.ServerID) (string, bool)
}

// NewForwardingBackend wraps node so ReadBarrier forwards to the
// current leader's admin address, resolved via resolve, whenever node
// itself answers not_a_leader with a hint.
func NewForwardingBackend(node *raftnode.Node, resolve func(raft.ServerID) (string, bool)) *ForwardingBackend {
	return &ForwardingBackend{backend: node, resolve: resolve}
}

// ReadBarrier tries the local node first. If it isn't leader but names
// one, it dials that leader's admin address and retries the call there
// instead of surfacing not_a_leader to the caller; any failure along
// that path falls back to the original error.
func (b *ForwardingBackend) ReadBarrier(ctx context.Context) error {
	err := b.backend.ReadBarrier(ctx)
	if err == nil {
		return nil
	}
	var notLeader *raft.NotLeaderError
	if !errors.As(err, &notLeader) || notLeader.LeaderHint == "" || b.resolve == nil {
		return err
	}
	addr, ok := b.resolve(notLeader.LeaderHint)
	if !ok {
		return err
	}
	client, dialErr := Dial(addr)
	if dialErr != nil {
		log.WithPeer(string(notLeader.LeaderHint)).Error().Err(dialErr).
			Msg("read barrier forward: failed to dial leader")
		return err
	}
	defer client.Close()
	if fwdErr := client.ReadBarrier(ctx); fwdErr != nil {
		return fwdErr
	}
	return nil
}
