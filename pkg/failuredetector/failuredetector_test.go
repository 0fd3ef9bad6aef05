package failuredetector

import (
	"testing"
	"time"

	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/stretchr/testify/assert"
)

func TestUnseenPeerIsConsideredAlive(t *testing.T) {
	d := New(time.Second)
	assert.True(t, d.IsAlive("never-seen"))
}

func TestPeerGoesStaleAfterThreshold(t *testing.T) {
	d := New(50 * time.Millisecond)
	at := time.Now()
	d.now = func() time.Time { return at }

	d.RecordSeen("a")
	assert.True(t, d.IsAlive("a"))

	at = at.Add(100 * time.Millisecond)
	assert.False(t, d.IsAlive("a"))
}

func TestRecordSeenResetsStaleness(t *testing.T) {
	d := New(50 * time.Millisecond)
	at := time.Now()
	d.now = func() time.Time { return at }

	d.RecordSeen("a")
	at = at.Add(100 * time.Millisecond)
	require := assert.New(t)
	require.False(d.IsAlive("a"))

	d.RecordSeen("a")
	require.True(d.IsAlive("a"))
}

func TestForgetRemovesPeer(t *testing.T) {
	d := New(time.Second)
	d.RecordSeen(raft.ServerID("a"))
	d.Forget("a")
	assert.True(t, d.IsAlive("a"), "a forgotten peer reverts to the unseen default")
}
