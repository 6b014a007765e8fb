package lock

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/distlockd/distlockd/cmd/util"
	"github.com/distlockd/distlockd/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// LockCommands groups the client-side lock operations
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Client commands for the lock server",
	}

	tryCmd = &cobra.Command{
		Use:     "try <name>",
		Short:   "Probe a lock without waiting",
		Long:    `Attempt a non-blocking acquire of the named lock. When the lock is free it is acquired and immediately released again; the exit code reports whether the lock was available (0) or busy (1).`,
		Args:    cobra.ExactArgs(1),
		PreRunE: bindFlags,
		RunE:    runTry,
	}

	execCmd = &cobra.Command{
		Use:     "exec <name> -- <command> [args...]",
		Short:   "Run a command while holding a lock",
		Long:    `Acquire the named lock, run the given command and release the lock when the command exits. The lock is released even when the command fails.`,
		Args:    cobra.MinimumNArgs(2),
		PreRunE: bindFlags,
		RunE:    runExec,
	}

	healthCmd = &cobra.Command{
		Use:     "health",
		Short:   "Check that the lock server is answering",
		Args:    cobra.NoArgs,
		PreRunE: bindFlags,
		RunE:    runHealth,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupClientFlags(LockCommands)

	key := "wait"
	execCmd.Flags().Duration(key, 10*time.Second, util.WrapString("How long to wait for the lock to become free"))

	LockCommands.AddCommand(tryCmd)
	LockCommands.AddCommand(execCmd)
	LockCommands.AddCommand(healthCmd)
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func newClient() client.IClient {
	return client.NewClient(*util.GetClientConfig())
}

func runTry(_ *cobra.Command, args []string) error {
	c := newClient()
	defer c.Close()

	name := args[0]
	ok, err := c.Acquire(name, 0)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("lock %q is busy\n", name)
		os.Exit(1)
	}

	if err := c.Release(name); err != nil {
		return err
	}
	fmt.Printf("lock %q is free\n", name)
	return nil
}

func runExec(_ *cobra.Command, args []string) error {
	c := newClient()
	defer c.Close()

	name := args[0]
	wait := viper.GetDuration("wait")

	return c.WithLock(name, wait, func() error {
		shellCmd := exec.Command(args[1], args[2:]...)
		shellCmd.Stdin = os.Stdin
		shellCmd.Stdout = os.Stdout
		shellCmd.Stderr = os.Stderr
		return shellCmd.Run()
	})
}

func runHealth(_ *cobra.Command, _ []string) error {
	c := newClient()
	defer c.Close()

	if err := c.Health(); err != nil {
		return err
	}
	fmt.Println("server is healthy")
	return nil
}
