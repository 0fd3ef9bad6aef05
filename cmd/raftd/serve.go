package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/raftkit/pkg/api"
	"github.com/cuemby/raftkit/pkg/failuredetector"
	"github.com/cuemby/raftkit/pkg/log"
	"github.com/cuemby/raftkit/pkg/metrics"
	"github.com/cuemby/raftkit/pkg/raft"
	"github.com/cuemby/raftkit/pkg/raftnode"
	"github.com/cuemby/raftkit/pkg/statemachine"
	"github.com/cuemby/raftkit/pkg/storage"
	"github.com/cuemby/raftkit/pkg/transport/grpcrpc"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve --config FILE",
	Short: "Run this node as a cluster member",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			return fmt.Errorf("--config is required")
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.LogLevel != "" {
			log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
		}

		raftCfg := raft.DefaultConfig(raft.ServerID(cfg.NodeID))
		if cfg.ElectionTick > 0 {
			raftCfg.ElectionTick = cfg.ElectionTick
		}
		if cfg.HeartbeatTick > 0 {
			raftCfg.HeartbeatTick = cfg.HeartbeatTick
		}
		if err := raftCfg.Validate(); err != nil {
			return fmt.Errorf("invalid raft configuration: %w", err)
		}

		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "./raftd-data"
		}
		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", true, "bolt store open")

		client := grpcrpc.NewClient(raft.ServerID(cfg.NodeID), cfg.resolver())

		sm := statemachine.New()
		detector := failuredetector.New(time.Duration(raftCfg.ElectionTick*4) * 100 * time.Millisecond)

		node, err := raftnode.New(raftCfg, cfg.configuration(), store, client, sm, detector)
		if err != nil {
			return fmt.Errorf("failed to construct node: %w", err)
		}
		if cfg.TickInterval != "" {
			d, err := time.ParseDuration(cfg.TickInterval)
			if err != nil {
				return fmt.Errorf("invalid tick_interval: %w", err)
			}
			node.SetTickInterval(d)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		node.Start(ctx)

		rpcServer := grpcrpc.NewServer(node)
		rpcErrCh := make(chan error, 1)
		go func() {
			if err := rpcServer.Serve(cfg.RaftAddr); err != nil {
				rpcErrCh <- fmt.Errorf("raft RPC server error: %w", err)
			}
		}()

		adminAddr := cfg.AdminAddr
		var adminServer *api.Server
		adminErrCh := make(chan error, 1)
		if adminAddr != "" {
			backend := api.NewForwardingBackend(node, cfg.adminResolver())
			adminServer = api.NewServer(backend, node.IsLeader)
			metrics.RegisterComponent("api", true, "admin service registered")
			go func() {
				if err := adminServer.Serve(adminAddr); err != nil {
					adminErrCh <- fmt.Errorf("admin API server error: %w", err)
				}
			}()
		}

		var healthServer *api.HealthServer
		if cfg.HealthAddr != "" {
			healthServer = api.NewHealthServer(node)
			go func() {
				if err := healthServer.Start(cfg.HealthAddr); err != nil {
					log.Error("health server error: " + err.Error())
				}
			}()
		}

		log.Info(fmt.Sprintf("raftd node %s listening for raft rpc on %s", cfg.NodeID, cfg.RaftAddr))
		if adminAddr != "" {
			log.Info(fmt.Sprintf("admin API listening on %s", adminAddr))
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-rpcErrCh:
			log.Error(err.Error())
		case err := <-adminErrCh:
			log.Error(err.Error())
		}

		if adminServer != nil {
			adminServer.Stop()
		}
		rpcServer.Stop()
		cancel()
		node.Abort()
		_ = client.Close()
		if err := store.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		log.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (required)")
}
