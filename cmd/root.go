package cmd

import (
	"fmt"
	"os"

	"github.com/distlockd/distlockd/cmd/lock"
	"github.com/distlockd/distlockd/cmd/perf"
	"github.com/distlockd/distlockd/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "distlockd",
		Short: "lightweight distributed lock server",
		Long: fmt.Sprintf(`distlockd (v%s)

A lightweight TCP lock server with named exclusive locks, FIFO fairness
and a newline-delimited text protocol.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of distlockd",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("distlockd v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
