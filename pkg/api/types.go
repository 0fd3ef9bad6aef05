// Package api is the client-facing admin gRPC service: the surface an
// operator or the cmd/raftd CLI uses to submit commands, change
// membership, request a linearizable read barrier, transfer
// leadership, or inspect status, as opposed to pkg/transport/grpcrpc
// which carries peer-to-peer Raft RPCs.
package api

import (
	"context"

	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/raftnode"
)

// ProposeRequest carries an opaque command for the replicated log.
type ProposeRequest struct {
	Data []byte
	// WaitApplied requests that Propose not return until the entry has
	// been handed to the state machine, rather than merely committed.
	WaitApplied bool
}

// ProposeResponse reports the log index the command committed at.
type ProposeResponse struct {
	Index raft.Index
}

// SetConfigurationRequest carries the desired membership set.
type SetConfigurationRequest struct {
	Servers []raft.ServerInfo
}

// SetConfigurationResponse is empty: success is the absence of an
// error.
type SetConfigurationResponse struct{}

// ReadBarrierRequest has no fields; only a leader may answer it.
type ReadBarrierRequest struct{}

// ReadBarrierResponse is empty: once returned, a local read is
// linearizable.
type ReadBarrierResponse struct{}

// StepdownRequest bounds how many ticks a leadership transfer may take.
type StepdownRequest struct {
	TimeoutTicks int
}

// StepdownResponse is empty: success is the absence of an error.
type StepdownResponse struct{}

// StatusRequest has no fields.
type StatusRequest struct{}

// StatusResponse mirrors raftnode.Status for wire transfer.
type StatusResponse struct {
	ID             raft.ServerID
	Role           raft.Role
	Leader         raft.ServerID
	CurrentTerm    raft.Term
	CommitIndex    raft.Index
	LastApplied    raft.Index
	Configuration  raft.Configuration
	ChangeInFlight bool
}

func statusToResponse(s raftnode.Status) *StatusResponse {
	return &StatusResponse{
		ID:             s.ID,
		Role:           s.Role,
		Leader:         s.Leader,
		CurrentTerm:    s.CurrentTerm,
		CommitIndex:    s.CommitIndex,
		LastApplied:    s.LastApplied,
		Configuration:  s.Configuration,
		ChangeInFlight: s.ChangeInFlight,
	}
}

// backend is the narrow surface Service dispatches into; *raftnode.Node
// satisfies it directly.
type backend interface {
	AddEntry(ctx context.Context, data []byte, wait ...raftnode.WaitType) (raft.Index, error)
	SetConfiguration(ctx context.Context, servers []raft.ServerInfo) error
	ReadBarrier(ctx context.Context) error
	Stepdown(ctx context.Context, timeoutTicks int) error
	GetStatus(ctx context.Context) (raftnode.Status, error)
}
