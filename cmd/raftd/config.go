package main

import (
	"fmt"
	"os"

	"github.com/cuemby/raftkit/pkg/raft"
	"gopkg.in/yaml.v3"
)

// peerConfig names one other cluster member by id and its Raft RPC
// address; Voter defaults to true since learners are rare enough to
// warrant an explicit flag rather than a silent default.
type peerConfig struct {
	ID        string `yaml:"id"`
	RaftAddr  string `yaml:"raft_addr"`
	AdminAddr string `yaml:"admin_addr,omitempty"`
	Voter     *bool  `yaml:"voter,omitempty"`
}

// fileConfig is the on-disk shape of --config: a single YAML file
// rather than a pile of flags, since anything beyond the simplest
// invocation names several peers and addresses.
type fileConfig struct {
	NodeID        string       `yaml:"node_id"`
	RaftAddr      string       `yaml:"raft_addr"`
	AdminAddr     string       `yaml:"admin_addr"`
	HealthAddr    string       `yaml:"health_addr"`
	DataDir       string       `yaml:"data_dir"`
	Peers         []peerConfig `yaml:"peers"`
	ElectionTick  int          `yaml:"election_tick"`
	HeartbeatTick int          `yaml:"heartbeat_tick"`
	TickInterval  string       `yaml:"tick_interval"`

	// LogLevel, when set, re-initializes logging for the serve process
	// with LogJSON, overriding the root command's --log-level and
	// --log-json flags, so a node's logging setup lives in the same file
	// as the rest of its identity. LogJSON has no effect while LogLevel
	// is empty.
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("config: node_id is required")
	}
	if cfg.RaftAddr == "" {
		return nil, fmt.Errorf("config: raft_addr is required")
	}
	return &cfg, nil
}

// configuration builds the initial Raft membership: this node plus
// every configured peer.
func (c *fileConfig) configuration() raft.Configuration {
	servers := []raft.ServerInfo{{ID: raft.ServerID(c.NodeID), Address: c.RaftAddr, Voter: true}}
	for _, p := range c.Peers {
		voter := true
		if p.Voter != nil {
			voter = *p.Voter
		}
		servers = append(servers, raft.ServerInfo{ID: raft.ServerID(p.ID), Address: p.RaftAddr, Voter: voter})
	}
	return raft.Configuration{Servers: servers}
}

// resolver returns a lookup function from server id to Raft RPC
// address, covering this node and every configured peer.
func (c *fileConfig) resolver() func(raft.ServerID) (string, bool) {
	addrs := map[raft.ServerID]string{raft.ServerID(c.NodeID): c.RaftAddr}
	for _, p := range c.Peers {
		addrs[raft.ServerID(p.ID)] = p.RaftAddr
	}
	return func(id raft.ServerID) (string, bool) {
		addr, ok := addrs[id]
		return addr, ok
	}
}

// adminResolver returns a lookup function from server id to admin API
// address, covering this node and every configured peer that has one.
// Used by api.ForwardingBackend to reach the leader's admin port when a
// read barrier is forwarded from a follower.
func (c *fileConfig) adminResolver() func(raft.ServerID) (string, bool) {
	addrs := map[raft.ServerID]string{raft.ServerID(c.NodeID): c.AdminAddr}
	for _, p := range c.Peers {
		if p.AdminAddr != "" {
			addrs[raft.ServerID(p.ID)] = p.AdminAddr
		}
	}
	return func(id raft.ServerID) (string, bool) {
		addr, ok := addrs[id]
		if !ok || addr == "" {
			return "", false
		}
		return addr, true
	}
}
