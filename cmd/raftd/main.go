// Command raftd runs a single raftkit cluster member, or talks to one
// as an admin client.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/raftkit/pkg/log"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "raftd",
	Short:   "raftd runs or administers a raftkit cluster member",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("raftd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(stepdownCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}
