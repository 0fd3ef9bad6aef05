package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/raftkit/pkg/api"
	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/statemachine"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func dialAdmin(addr string) (*api.Client, error) {
	return api.Dial(addr)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a node's current Raft status",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("admin-addr")
		c, err := dialAdmin(addr)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), api.DefaultCallTimeout)
		defer cancel()
		status, err := c.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch status: %w", err)
		}

		fmt.Printf("ID:              %s\n", status.ID)
		fmt.Printf("Role:            %s\n", status.Role)
		fmt.Printf("Leader:          %s\n", status.Leader)
		fmt.Printf("Term:            %d\n", status.CurrentTerm)
		fmt.Printf("Commit Index:    %d\n", status.CommitIndex)
		fmt.Printf("Last Applied:    %d\n", status.LastApplied)
		fmt.Printf("Change in flight: %v\n", status.ChangeInFlight)
		fmt.Println("Configuration:")
		for _, s := range status.Configuration.Servers {
			fmt.Printf("  - %s @ %s (voter=%v)\n", s.ID, s.Address, s.Voter)
		}
		return nil
	},
}

var proposeCmd = &cobra.Command{
	Use:   "propose --key KEY --value VALUE",
	Short: "Propose a key/value set command to the replicated log",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("admin-addr")
		key, _ := cmd.Flags().GetString("key")
		value, _ := cmd.Flags().GetString("value")
		waitApplied, _ := cmd.Flags().GetBool("wait-applied")
		if key == "" {
			return fmt.Errorf("--key is required")
		}

		data, err := statemachine.EncodeSet(key, value)
		if err != nil {
			return fmt.Errorf("failed to encode command: %w", err)
		}

		c, err := dialAdmin(addr)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var index raft.Index
		if waitApplied {
			index, err = c.ProposeApplied(ctx, data)
		} else {
			index, err = c.Propose(ctx, data)
		}
		if err != nil {
			return fmt.Errorf("failed to propose: %w", err)
		}
		fmt.Printf("committed at index %d\n", index)
		return nil
	},
}

var configureCmd = &cobra.Command{
	Use:   "configure --servers id=addr[:voter],...",
	Short: "Submit a new cluster membership",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("admin-addr")
		raw, _ := cmd.Flags().GetString("servers")
		servers, err := parseServers(raw)
		if err != nil {
			return err
		}

		c, err := dialAdmin(addr)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.SetConfiguration(ctx, servers); err != nil {
			return fmt.Errorf("failed to set configuration: %w", err)
		}
		fmt.Println("configuration applied")
		return nil
	},
}

var stepdownCmd = &cobra.Command{
	Use:   "stepdown",
	Short: "Ask the leader to transfer leadership to a follower",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("admin-addr")
		timeoutTicks, _ := cmd.Flags().GetInt("timeout-ticks")

		c, err := dialAdmin(addr)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Stepdown(ctx, timeoutTicks); err != nil {
			return fmt.Errorf("failed to step down: %w", err)
		}
		fmt.Println("leadership transfer initiated")
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{statusCmd, proposeCmd, configureCmd, stepdownCmd} {
		cmd.Flags().String("admin-addr", "127.0.0.1:8000", "Admin API address of a cluster member")
	}
	proposeCmd.Flags().String("key", "", "Key to set (required)")
	proposeCmd.Flags().String("value", "", "Value to set")
	proposeCmd.Flags().Bool("wait-applied", false, "Wait for the state machine to apply the entry, not just commit it")
	configureCmd.Flags().String("servers", "", "Comma-separated id=addr[:voter] list (required)")
	stepdownCmd.Flags().Int("timeout-ticks", 10, "Ticks to wait before the transfer is abandoned")
}

// parseServers parses "id=addr:voter,id2=addr2" into raft.ServerInfo
// entries; voter defaults to true when omitted. A blank id (",=addr"
// or "=addr") asks raftd to mint a fresh server id for a new member the
// operator hasn't assigned one to yet.
func parseServers(raw string) ([]raft.ServerInfo, error) {
	if raw == "" {
		return nil, fmt.Errorf("--servers is required")
	}
	var servers []raft.ServerInfo
	for _, part := range strings.Split(raw, ",") {
		idAddr := strings.SplitN(part, "=", 2)
		if len(idAddr) != 2 {
			return nil, fmt.Errorf("invalid server entry %q: expected id=addr[:voter]", part)
		}
		id := idAddr[0]
		if id == "" {
			id = uuid.NewString()
		}
		rest := strings.SplitN(idAddr[1], ":", 3)
		if len(rest) < 2 {
			return nil, fmt.Errorf("invalid server entry %q: expected id=host:port[:voter]", part)
		}
		voter := true
		addr := rest[0] + ":" + rest[1]
		if len(rest) == 3 {
			v, err := strconv.ParseBool(rest[2])
			if err != nil {
				return nil, fmt.Errorf("invalid voter flag in %q: %w", part, err)
			}
			voter = v
		}
		servers = append(servers, raft.ServerInfo{ID: raft.ServerID(id), Address: addr, Voter: voter})
	}
	return servers, nil
}
