package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBarrierReadyOnlyAfterQuorumHeartbeatAck(t *testing.T) {
	f := soleLeader(t, "a", "b", "c")

	id, err := f.RequestReadBarrier()
	require.NoError(t, err)
	out := f.GetOutput()
	assert.Empty(t, out.ReadsReady, "no quorum has confirmed leadership yet")

	// One follower acking the barrier's heartbeat round makes two of
	// three, which is quorum.
	f.handleAppendEntriesResponse("b", &AppendEntriesResponse{
		Term: f.CurrentTerm(), Follower: "b", Success: true, LastIndexHint: f.LastLogIndex(),
	})
	out = f.GetOutput()
	assert.Contains(t, out.ReadsReady, id, "read barrier should become ready once a quorum acks")
}

func TestReadBarrierOnNonLeaderFails(t *testing.T) {
	c := newCluster("a", "b", "c")
	leaderID := c.electLeader(30)
	var follower ServerID
	for id := range c.fsms {
		if id != leaderID {
			follower = id
			break
		}
	}
	_, err := c.fsms[follower].RequestReadBarrier()
	var nle *NotLeaderError
	assert.ErrorAs(t, err, &nle)
}

func TestReadBarrierAbortedOnStepDownToFollower(t *testing.T) {
	c := newCluster("a", "b", "c")
	leaderID := c.electLeader(30)
	leader := c.fsms[leaderID]

	id, err := leader.RequestReadBarrier()
	require.NoError(t, err)
	leader.GetOutput()

	leader.observeTerm(leader.CurrentTerm() + 1)
	out := leader.GetOutput()
	assert.Contains(t, out.ReadsAborted, id)
}
