package api

import (
	"context"
	"time"

	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/raftnode"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin admin client: cmd/raftd and any other operator
// tooling dial one cluster member and issue unary admin calls against
// it directly, rather than going through transport.Transport.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr for admin calls.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Propose submits data to the replicated log, returning the index it
// committed at.
func (c *Client) Propose(ctx context.Context, data []byte) (raft.Index, error) {
	return c.propose(ctx, data, false)
}

// ProposeApplied submits data to the replicated log and does not return
// until the state machine has applied it, rather than merely committed
// it.
func (c *Client) ProposeApplied(ctx context.Context, data []byte) (raft.Index, error) {
	return c.propose(ctx, data, true)
}

func (c *Client) propose(ctx context.Context, data []byte, waitApplied bool) (raft.Index, error) {
	resp := new(ProposeResponse)
	req := &ProposeRequest{Data: data, WaitApplied: waitApplied}
	if err := c.conn.Invoke(ctx, methodPath("Propose"), req, resp); err != nil {
		return 0, err
	}
	return resp.Index, nil
}

// SetConfiguration requests a membership change to servers.
func (c *Client) SetConfiguration(ctx context.Context, servers []raft.ServerInfo) error {
	resp := new(SetConfigurationResponse)
	return c.conn.Invoke(ctx, methodPath("SetConfiguration"), &SetConfigurationRequest{Servers: servers}, resp)
}

// ReadBarrier blocks until a linearizable read is safe against the
// leader's current commit index.
func (c *Client) ReadBarrier(ctx context.Context) error {
	resp := new(ReadBarrierResponse)
	return c.conn.Invoke(ctx, methodPath("ReadBarrier"), &ReadBarrierRequest{}, resp)
}

// Stepdown asks the leader to transfer leadership, bounded by
// timeoutTicks.
func (c *Client) Stepdown(ctx context.Context, timeoutTicks int) error {
	resp := new(StepdownResponse)
	return c.conn.Invoke(ctx, methodPath("Stepdown"), &StepdownRequest{TimeoutTicks: timeoutTicks}, resp)
}

// Status fetches the remote node's current Raft status.
func (c *Client) Status(ctx context.Context) (raftnode.Status, error) {
	resp := new(StatusResponse)
	if err := c.conn.Invoke(ctx, methodPath("Status"), &StatusRequest{}, resp); err != nil {
		return raftnode.Status{}, err
	}
	return raftnode.Status{
		ID:             resp.ID,
		Role:           resp.Role,
		Leader:         resp.Leader,
		CurrentTerm:    resp.CurrentTerm,
		CommitIndex:    resp.CommitIndex,
		LastApplied:    resp.LastApplied,
		Configuration:  resp.Configuration,
		ChangeInFlight: resp.ChangeInFlight,
	}, nil
}

// DefaultCallTimeout bounds admin calls issued without a caller
// supplied deadline; cmd/raftd's status command wraps ctx with it, while
// its propose, configure and stepdown commands set their own timeouts.
const DefaultCallTimeout = 5 * time.Second
