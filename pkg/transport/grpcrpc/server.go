package grpcrpc

import (
	"context"
	"fmt"
	"net"

	"github.com/cuemby/raftkit/pkg/log"
	"github.com/cuemby/raftkit/pkg/raft"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// fromMetadataKey carries the sending server's id on every outbound
// call, since the JSON-codec request bodies above only mirror raft's
// wire messages and have no field of their own for it.
const fromMetadataKey = "raftkit-from"

func callerID(ctx context.Context) raft.ServerID {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(fromMetadataKey)
	if len(values) == 0 {
		return ""
	}
	return raft.ServerID(values[0])
}

// Server hosts the Raft RPC service over a real gRPC listener, routing
// every call into a raftnode.Node's synchronous RequestHandler methods.
type Server struct {
	grpc *grpc.Server
}

// NewServer wraps h (normally a *raftnode.Node) behind a gRPC server.
// Additional grpc.ServerOption values (TLS credentials, interceptors)
// may be supplied by the caller.
func NewServer(h handler, opts ...grpc.ServerOption) *Server {
	allOpts := append([]grpc.ServerOption{grpc.ForceServerCodec(jsonCodec{})}, opts...)
	s := grpc.NewServer(allOpts...)
	s.RegisterService(&serviceDesc, h)
	return &Server{grpc: s}
}

// Serve listens on addr and blocks serving RPCs until the listener
// fails or Stop is called.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpcrpc: failed to listen on %s: %w", addr, err)
	}
	log.Info("raft rpc server listening on " + addr)
	return s.grpc.Serve(lis)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
