package raftnode

import (
	"context"

	"github.com/cuemby/raftkit/pkg/raft"
)

// RequestHandler is the synchronous surface a networked transport
// server (pkg/transport/grpcrpc) calls into. Each method enqueues the
// inbound event on the node's single receive loop, together with a
// reply channel, and blocks until the matching response is produced.
type RequestHandler interface {
	HandleVote(ctx context.Context, from raft.ServerID, req *raft.VoteRequest) (*raft.VoteResponse, error)
	HandlePreVote(ctx context.Context, from raft.ServerID, req *raft.PreVoteRequest) (*raft.PreVoteResponse, error)
	HandleAppendEntries(ctx context.Context, from raft.ServerID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error)
	HandleInstallSnapshot(ctx context.Context, from raft.ServerID, req *raft.InstallSnapshotRequest) (*raft.InstallSnapshotResponse, error)
	HandleTimeoutNow(ctx context.Context, from raft.ServerID, req *raft.TimeoutNowRequest) (*raft.TimeoutNowResponse, error)
}

var _ RequestHandler = (*Node)(nil)

func (n *Node) call(ctx context.Context, in raft.Inbound) (raft.Send, error) {
	reply := make(chan raft.Send, 1)
	select {
	case n.calls <- rpcCall{in: in, reply: reply}:
	case <-ctx.Done():
		return raft.Send{}, ctx.Err()
	case <-n.stopCh:
		return raft.Send{}, raft.ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return raft.Send{}, ctx.Err()
	case <-n.stopCh:
		return raft.Send{}, raft.ErrStopped
	}
}

// HandleVote answers a real-vote RPC synchronously.
func (n *Node) HandleVote(ctx context.Context, from raft.ServerID, req *raft.VoteRequest) (*raft.VoteResponse, error) {
	s, err := n.call(ctx, raft.Inbound{From: from, VoteRequest: req})
	if err != nil {
		return nil, err
	}
	return s.VoteResponse, nil
}

// HandlePreVote answers a pre-vote RPC synchronously.
func (n *Node) HandlePreVote(ctx context.Context, from raft.ServerID, req *raft.PreVoteRequest) (*raft.PreVoteResponse, error) {
	s, err := n.call(ctx, raft.Inbound{From: from, PreVoteRequest: req})
	if err != nil {
		return nil, err
	}
	return s.PreVoteResponse, nil
}

// HandleAppendEntries answers a replication or heartbeat RPC
// synchronously.
func (n *Node) HandleAppendEntries(ctx context.Context, from raft.ServerID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	s, err := n.call(ctx, raft.Inbound{From: from, AppendEntriesRequest: req})
	if err != nil {
		return nil, err
	}
	return s.AppendEntriesResponse, nil
}

// HandleInstallSnapshot answers a snapshot-transfer RPC synchronously.
func (n *Node) HandleInstallSnapshot(ctx context.Context, from raft.ServerID, req *raft.InstallSnapshotRequest) (*raft.InstallSnapshotResponse, error) {
	s, err := n.call(ctx, raft.Inbound{From: from, InstallSnapshotRequest: req})
	if err != nil {
		return nil, err
	}
	return s.InstallSnapshotResponse, nil
}

// HandleTimeoutNow answers a leadership-transfer RPC. Unlike the other
// RPCs, stepping a TimeoutNowRequest through the FSM produces no Send
// in response (the callee starts campaigning, it does not reply), so
// this acknowledges synchronously once the step has been applied
// rather than waiting on an Output message that will never arrive.
func (n *Node) HandleTimeoutNow(ctx context.Context, from raft.ServerID, req *raft.TimeoutNowRequest) (*raft.TimeoutNowResponse, error) {
	termCh := make(chan raft.Term, 1)
	select {
	case n.commands <- func() {
		n.fsm.Step(raft.Inbound{From: from, TimeoutNowRequest: req})
		n.afterStep(nil)
		termCh <- n.fsm.CurrentTerm()
	}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.stopCh:
		return nil, raft.ErrStopped
	}
	select {
	case term := <-termCh:
		return &raft.TimeoutNowResponse{Term: term}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.stopCh:
		return nil, raft.ErrStopped
	}
}
