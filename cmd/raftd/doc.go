// Command raftd is the reference binary built on top of pkg/raftnode:
// `raftd serve --config node-a.yaml` runs one cluster member, hosting
// both the peer-to-peer Raft RPC service (pkg/transport/grpcrpc) and
// the admin API (pkg/api) described by its config file. The `status`,
// `propose`, `configure` and `stepdown` subcommands are a thin
// pkg/api.Client wrapper for operating a running cluster from the
// command line.
package main
