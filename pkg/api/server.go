package api

import (
	"net"

	"github.com/cuemby/raftkit/pkg/log"
	"google.golang.org/grpc"
)

// Server hosts the admin service against a backend, gating every
// mutating method behind leadership so a follower rejects a write
// immediately instead of accepting a command it can never commit.
type Server struct {
	grpc *grpc.Server
}

// NewServer registers backend against the admin service, wrapped with
// LeaderOnlyInterceptor(isLeader).
func NewServer(backend backend, isLeader func() bool, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.UnaryInterceptor(LeaderOnlyInterceptor(isLeader)),
		grpc.ForceServerCodec(jsonCodec{}),
	}, opts...)
	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, backend)
	return &Server{grpc: s}
}

// Serve blocks accepting admin connections on addr.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("admin API listening on " + addr)
	return s.grpc.Serve(lis)
}

// Stop drains in-flight calls and shuts the server down.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
