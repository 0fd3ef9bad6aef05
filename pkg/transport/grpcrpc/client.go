package grpcrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/raftkit/pkg/log"
	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

var _ transport.Transport = (*Client)(nil)

// Client is a networked Transport: Send dials the destination peer (or
// reuses a cached connection) and issues a real unary gRPC call; the
// response is fed back through Requests as though the peer had
// initiated it, so a raftnode.Node's receive loop sees responses and
// peer-initiated requests through the same channel.
type Client struct {
	self raft.ServerID

	mu        sync.Mutex
	conns     map[raft.ServerID]*grpc.ClientConn
	overrides map[raft.ServerID]string

	addresses func(raft.ServerID) (string, bool)

	inbox chan transport.Envelope
	opts  []grpc.DialOption

	callTimeout time.Duration
}

// NewClient creates a Client that resolves peer addresses via
// resolve. self identifies this server in outbound request metadata.
func NewClient(self raft.ServerID, resolve func(raft.ServerID) (string, bool), opts ...grpc.DialOption) *Client {
	allOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	return &Client{
		self:        self,
		conns:       make(map[raft.ServerID]*grpc.ClientConn),
		overrides:   make(map[raft.ServerID]string),
		addresses:   resolve,
		inbox:       make(chan transport.Envelope, 1024),
		opts:        allOpts,
		callTimeout: 2 * time.Second,
	}
}

func (c *Client) connFor(id raft.ServerID) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[id]; ok {
		return conn, nil
	}
	addr, ok := c.overrides[id]
	if !ok {
		addr, ok = c.addresses(id)
	}
	if !ok {
		return nil, fmt.Errorf("grpcrpc: no known address for %s", id)
	}
	conn, err := grpc.NewClient(addr, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcrpc: failed to dial %s at %s: %w", id, addr, err)
	}
	c.conns[id] = conn
	return conn, nil
}

// AddServer registers addr as where id can be reached, redialing on the
// next Send if a connection to id was already cached under a stale
// address. This is how a server added to the cluster mid-life (e.g. via
// joint consensus) becomes reachable without a process restart.
func (c *Client) AddServer(id raft.ServerID, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overrides[id] == addr {
		return nil
	}
	c.overrides[id] = addr
	if conn, ok := c.conns[id]; ok {
		delete(c.conns, id)
		return conn.Close()
	}
	return nil
}

// RemoveServer forgets id's address and closes any cached connection to
// it. It is a no-op if id is unknown.
func (c *Client) RemoveServer(id raft.ServerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overrides, id)
	if conn, ok := c.conns[id]; ok {
		delete(c.conns, id)
		return conn.Close()
	}
	return nil
}

func (c *Client) outgoingContext(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, fromMetadataKey, string(c.self))
}

// Send dispatches msg as a unary RPC to msg.To and feeds the response
// back through Requests as an Envelope from msg.To. A destination with
// no known address, or a connection that cannot be set up, is returned
// as an error; RPC failures are logged and dropped, matching the
// fire-and-forget contract documented on transport.Transport.
func (c *Client) Send(ctx context.Context, msg raft.Send) error {
	conn, err := c.connFor(msg.To)
	if err != nil {
		return err
	}
	go c.dispatch(c.outgoingContext(context.WithoutCancel(ctx)), conn, msg)
	return nil
}

func (c *Client) dispatch(ctx context.Context, conn *grpc.ClientConn, msg raft.Send) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	var resp raft.Send
	var err error
	switch {
	case msg.VoteRequest != nil:
		out := new(raft.VoteResponse)
		err = conn.Invoke(ctx, "/"+serviceName+"/Vote", msg.VoteRequest, out)
		resp = raft.Send{To: msg.To, VoteResponse: out}
	case msg.PreVoteRequest != nil:
		out := new(raft.PreVoteResponse)
		err = conn.Invoke(ctx, "/"+serviceName+"/PreVote", msg.PreVoteRequest, out)
		resp = raft.Send{To: msg.To, PreVoteResponse: out}
	case msg.AppendEntriesRequest != nil:
		out := new(raft.AppendEntriesResponse)
		err = conn.Invoke(ctx, "/"+serviceName+"/AppendEntries", msg.AppendEntriesRequest, out)
		resp = raft.Send{To: msg.To, AppendEntriesResponse: out}
	case msg.InstallSnapshotRequest != nil:
		out := new(raft.InstallSnapshotResponse)
		err = conn.Invoke(ctx, "/"+serviceName+"/InstallSnapshot", msg.InstallSnapshotRequest, out)
		resp = raft.Send{To: msg.To, InstallSnapshotResponse: out}
	case msg.TimeoutNowRequest != nil:
		out := new(raft.TimeoutNowResponse)
		err = conn.Invoke(ctx, "/"+serviceName+"/TimeoutNow", msg.TimeoutNowRequest, out)
		resp = raft.Send{To: msg.To, TimeoutNowResponse: out}
	default:
		return
	}
	if err != nil {
		log.WithPeer(string(msg.To)).Error().Err(err).Msg("grpcrpc: rpc failed")
		return
	}
	select {
	case c.inbox <- transport.Envelope{From: msg.To, Msg: resp}:
	default:
		log.WithPeer(string(msg.To)).Error().Msg("grpcrpc: inbox full, dropping response")
	}
}

// Requests returns the channel carrying RPC responses this client
// dispatched.
func (c *Client) Requests() <-chan transport.Envelope {
	return c.inbox
}

// Close tears down every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("grpcrpc: failed to close connection to %s: %w", id, err)
		}
	}
	c.conns = make(map[raft.ServerID]*grpc.ClientConn)
	return firstErr
}
