// Package grpcrpc is a networked Transport implementation for
// pkg/raftnode: it carries the five Raft RPCs over real gRPC
// connections between cluster members, using a JSON codec (codec.go)
// in place of generated protobuf bindings.
package grpcrpc

import (
	"context"

	"github.com/cuemby/raftkit/pkg/raft"
	"google.golang.org/grpc"
)

// serviceName is the gRPC service path every method below is served
// under: "/raftkit.Raft/Vote", "/raftkit.Raft/AppendEntries", and so on.
const serviceName = "raftkit.Raft"

// handler is the narrow synchronous surface ServiceDesc dispatches
// into; pkg/raftnode.Node satisfies it via its RequestHandler methods,
// with ServerID threaded through peer metadata rather than the message
// itself (see server.go).
type handler interface {
	HandleVote(ctx context.Context, from raft.ServerID, req *raft.VoteRequest) (*raft.VoteResponse, error)
	HandlePreVote(ctx context.Context, from raft.ServerID, req *raft.PreVoteRequest) (*raft.PreVoteResponse, error)
	HandleAppendEntries(ctx context.Context, from raft.ServerID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error)
	HandleInstallSnapshot(ctx context.Context, from raft.ServerID, req *raft.InstallSnapshotRequest) (*raft.InstallSnapshotResponse, error)
	HandleTimeoutNow(ctx context.Context, from raft.ServerID, req *raft.TimeoutNowRequest) (*raft.TimeoutNowResponse, error)
}

func voteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(raft.VoteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(handler)
	if interceptor == nil {
		return h.HandleVote(ctx, callerID(ctx), req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Vote"}
	wrapped := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.HandleVote(ctx, callerID(ctx), req.(*raft.VoteRequest))
	}
	return interceptor(ctx, req, info, wrapped)
}

func preVoteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(raft.PreVoteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(handler)
	if interceptor == nil {
		return h.HandlePreVote(ctx, callerID(ctx), req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/PreVote"}
	wrapped := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.HandlePreVote(ctx, callerID(ctx), req.(*raft.PreVoteRequest))
	}
	return interceptor(ctx, req, info, wrapped)
}

func appendEntriesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(raft.AppendEntriesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(handler)
	if interceptor == nil {
		return h.HandleAppendEntries(ctx, callerID(ctx), req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AppendEntries"}
	wrapped := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.HandleAppendEntries(ctx, callerID(ctx), req.(*raft.AppendEntriesRequest))
	}
	return interceptor(ctx, req, info, wrapped)
}

func installSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(raft.InstallSnapshotRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(handler)
	if interceptor == nil {
		return h.HandleInstallSnapshot(ctx, callerID(ctx), req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/InstallSnapshot"}
	wrapped := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.HandleInstallSnapshot(ctx, callerID(ctx), req.(*raft.InstallSnapshotRequest))
	}
	return interceptor(ctx, req, info, wrapped)
}

func timeoutNowHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(raft.TimeoutNowRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(handler)
	if interceptor == nil {
		return h.HandleTimeoutNow(ctx, callerID(ctx), req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/TimeoutNow"}
	wrapped := func(ctx context.Context, req interface{}) (interface{}, error) {
		return h.HandleTimeoutNow(ctx, callerID(ctx), req.(*raft.TimeoutNowRequest))
	}
	return interceptor(ctx, req, info, wrapped)
}

// serviceDesc is hand-authored in place of a protoc-generated one: the
// method set mirrors raft.Inbound's five RPC shapes exactly.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Vote", Handler: voteHandler},
		{MethodName: "PreVote", Handler: preVoteHandler},
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
		{MethodName: "InstallSnapshot", Handler: installSnapshotHandler},
		{MethodName: "TimeoutNow", Handler: timeoutNowHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raftkit/raft.proto",
}
