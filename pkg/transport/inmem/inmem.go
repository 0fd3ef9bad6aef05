// Package inmem provides a channel-based Transport for exercising
// multiple raftnode.Node instances in a single process, with no real
// network involved: used by pkg/raftnode's tests, which need more than
// the pkg/raft unit-level cluster helper. internal/simulator does not
// use it; it routes messages between FSMs itself.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/transport"
)

// Network is a shared registry of in-process peers. Peers register
// themselves by ServerID and receive a Transport bound to that id.
type Network struct {
	mu    sync.RWMutex
	peers map[raft.ServerID]*Peer

	// Drop, when non-nil, is consulted before every delivery: returning
	// true silently discards the message, for partition simulation.
	Drop func(from, to raft.ServerID) bool
}

// NewNetwork creates an empty in-memory network.
func NewNetwork() *Network {
	return &Network{peers: make(map[raft.ServerID]*Peer)}
}

// Join registers id with the network and returns its Transport. The
// channel buffer is sized generously since the owning node's receive
// loop drains it promptly; a real deployment would use grpcrpc instead.
func (n *Network) Join(id raft.ServerID) *Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := &Peer{id: id, net: n, inbox: make(chan transport.Envelope, 1024)}
	n.peers[id] = p
	return p
}

// Leave removes id from the network: messages addressed to it are
// silently dropped afterward.
func (n *Network) Leave(id raft.ServerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

func (n *Network) deliver(from raft.ServerID, msg raft.Send) error {
	n.mu.RLock()
	peer, ok := n.peers[msg.To]
	drop := n.Drop
	n.mu.RUnlock()

	if !ok {
		return nil
	}
	if drop != nil && drop(from, msg.To) {
		return nil
	}
	select {
	case peer.inbox <- transport.Envelope{From: from, Msg: msg}:
		return nil
	default:
		return fmt.Errorf("inmem: inbox full for %s", msg.To)
	}
}

// Peer is one network member's Transport handle.
type Peer struct {
	id    raft.ServerID
	net   *Network
	inbox chan transport.Envelope
}

var _ transport.Transport = (*Peer)(nil)

// Send delivers msg to its destination peer's inbox.
func (p *Peer) Send(_ context.Context, msg raft.Send) error {
	return p.net.deliver(p.id, msg)
}

// Requests returns this peer's inbound channel.
func (p *Peer) Requests() <-chan transport.Envelope {
	return p.inbox
}

// AddServer is a no-op: the shared Network already routes by ServerID
// regardless of when a peer joined, so there is no address to record.
func (p *Peer) AddServer(raft.ServerID, string) error { return nil }

// RemoveServer is a no-op for the same reason as AddServer; a peer
// actually leaves the network via Close.
func (p *Peer) RemoveServer(raft.ServerID) error { return nil }

// Close removes this peer from the network.
func (p *Peer) Close() error {
	p.net.Leave(p.id)
	return nil
}
