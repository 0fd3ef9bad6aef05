// Package grpcrpc wires pkg/raftnode's Raft RPCs onto real gRPC
// connections between cluster members.
//
// Client implements transport.Transport: Send dials the destination
// peer lazily, caches the connection, and issues a unary RPC for
// whichever message field is set; the response is delivered back
// through Requests as an Envelope, the same shape a peer-initiated
// request would take, since a Node's receive loop drains both through
// one channel.
//
// Server hosts the other side: it registers a hand-authored
// grpc.ServiceDesc (service.go) against a raftnode.Node, routing every
// inbound call straight into the node's synchronous RequestHandler
// methods rather than through the Requests channel, since gRPC unary
// handlers must return their response value directly.
//
// Messages ride gRPC's framing and deadline propagation, but not its
// usual protobuf wire format: with no protoc toolchain available to
// generate bindings for raft's message types, codec.go registers a
// JSON codec instead and every call requests it via
// grpc.CallContentSubtype / grpc.ForceServerCodec.
package grpcrpc
