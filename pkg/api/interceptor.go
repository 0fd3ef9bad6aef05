package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LeaderOnlyInterceptor rejects every method except the read-only ones
// unless isLeader reports true, so a follower fails a write fast
// instead of silently accepting a command it can never commit.
func LeaderOnlyInterceptor(isLeader func() bool) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if isReadOnlyMethod(info.FullMethod) || isLeader() {
			return handler(ctx, req)
		}
		return nil, status.Errorf(codes.FailedPrecondition, "raftkit: not leader")
	}
}

// isReadOnlyMethod checks whether a gRPC method never mutates Raft
// state: ReadBarrier only confirms leadership, and Status is a plain
// inspection.
func isReadOnlyMethod(method string) bool {
	parts := strings.Split(method, "/")
	if len(parts) < 2 {
		return false
	}
	switch parts[len(parts)-1] {
	case "Status", "ReadBarrier":
		return true
	default:
		return false
	}
}
