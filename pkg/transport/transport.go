// Package transport defines the rpc collaborator a driver uses to
// exchange Raft messages with peers, plus two concrete adapters: inmem
// (pkg/transport/inmem), a channel-based transport for in-process
// raftnode tests, and grpcrpc (pkg/transport/grpcrpc), a networked transport
// for real deployments.
package transport

import (
	"context"

	"github.com/cuemby/raftkit/pkg/raft"
)

// Envelope wraps one inbound message delivered to a driver's receive
// loop, whether it is a request from a peer or a response to a request
// this server previously sent.
type Envelope struct {
	From raft.ServerID
	Msg  raft.Send
}

// Transport is the rpc collaborator. Send is fire-and-forget from the
// caller's perspective: any response a peer sends back arrives later as
// an Envelope on Requests, not as a return value, since the driver that
// owns an FSM must feed every inbound event through a single channel to
// preserve single-threaded access to the FSM.
type Transport interface {
	// Send dispatches msg to msg.To. Implementations should not block
	// the caller on the remote peer's availability; a transient failure
	// is simply dropped, since Raft's own retry-via-heartbeat handles
	// loss.
	Send(ctx context.Context, msg raft.Send) error

	// Requests returns the channel a driver's receive loop drains for
	// every inbound request or response addressed to this server.
	Requests() <-chan Envelope

	// AddServer registers or updates the address a driver should use to
	// reach id, called whenever a driver observes id enter its current
	// configuration (including mid-life, via joint consensus).
	AddServer(id raft.ServerID, addr string) error

	// RemoveServer forgets any address registered for id. It is a no-op
	// if id is unknown.
	RemoveServer(id raft.ServerID) error

	// Close releases the transport's resources.
	Close() error
}
