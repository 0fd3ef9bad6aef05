// Package api is the client-facing admin surface of a raftkit node:
// Propose, SetConfiguration, ReadBarrier, Stepdown and Status, exposed
// over gRPC the same way pkg/transport/grpcrpc exposes peer-to-peer
// Raft RPCs, plus a plain HTTP HealthServer for /health, /ready and
// /metrics.
//
// Server registers a hand-authored grpc.ServiceDesc (service.go)
// against any backend implementation, wrapping every call in
// LeaderOnlyInterceptor so writes fail fast on a follower instead of
// silently proposing an entry that can never commit locally. As with
// the peer transport, there is no protoc toolchain available, so
// codec.go registers its own JSON codec rather than generating
// protobuf bindings.
//
// Client is the counterpart used by cmd/raftd: it dials one cluster
// member and issues unary calls directly, since admin operations are
// infrequent enough that a promise/channel-based transport like
// pkg/raftnode's is unnecessary overhead here.
package api
