package grpcrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHandler answers every RPC with a canned response, recording the
// caller id and request it saw, for assertions.
type stubHandler struct {
	lastFrom raft.ServerID
	lastVote *raft.VoteRequest
}

func (s *stubHandler) HandleVote(ctx context.Context, from raft.ServerID, req *raft.VoteRequest) (*raft.VoteResponse, error) {
	s.lastFrom = from
	s.lastVote = req
	return &raft.VoteResponse{Term: req.Term, Voter: "b", Granted: true}, nil
}

func (s *stubHandler) HandlePreVote(ctx context.Context, from raft.ServerID, req *raft.PreVoteRequest) (*raft.PreVoteResponse, error) {
	return &raft.PreVoteResponse{Term: req.Term, Voter: "b", Granted: true}, nil
}

func (s *stubHandler) HandleAppendEntries(ctx context.Context, from raft.ServerID, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	return &raft.AppendEntriesResponse{Term: req.Term, Follower: "b", Success: true, LastIndexHint: req.PrevLogIndex}, nil
}

func (s *stubHandler) HandleInstallSnapshot(ctx context.Context, from raft.ServerID, req *raft.InstallSnapshotRequest) (*raft.InstallSnapshotResponse, error) {
	return &raft.InstallSnapshotResponse{Term: req.Term, Follower: "b", Success: true}, nil
}

func (s *stubHandler) HandleTimeoutNow(ctx context.Context, from raft.ServerID, req *raft.TimeoutNowRequest) (*raft.TimeoutNowResponse, error) {
	return &raft.TimeoutNowResponse{Term: req.Term}, nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestClientServerRoundTripsVoteRequest(t *testing.T) {
	addr := freeAddr(t)
	h := &stubHandler{}
	srv := NewServer(h)
	go srv.Serve(addr)
	defer srv.Stop()

	time.Sleep(100 * time.Millisecond)

	client := NewClient("a", func(id raft.ServerID) (string, bool) {
		if id == "b" {
			return addr, true
		}
		return "", false
	})
	defer client.Close()

	require.NoError(t, client.Send(context.Background(), raft.Send{
		To:          "b",
		VoteRequest: &raft.VoteRequest{Term: 3, Candidate: "a", LastLogIndex: 5, LastLogTerm: 2},
	}))

	select {
	case env := <-client.Requests():
		assert.Equal(t, raft.ServerID("b"), env.From)
		require.NotNil(t, env.Msg.VoteResponse)
		assert.Equal(t, raft.Term(3), env.Msg.VoteResponse.Term)
		assert.True(t, env.Msg.VoteResponse.Granted)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	assert.Equal(t, raft.ServerID("a"), h.lastFrom)
	require.NotNil(t, h.lastVote)
	assert.Equal(t, raft.ServerID("a"), h.lastVote.Candidate)
}

func TestClientSendToUnknownAddressFails(t *testing.T) {
	client := NewClient("a", func(id raft.ServerID) (string, bool) { return "", false })
	defer client.Close()

	err := client.Send(context.Background(), raft.Send{To: "ghost", VoteRequest: &raft.VoteRequest{}})
	assert.Error(t, err)
}
