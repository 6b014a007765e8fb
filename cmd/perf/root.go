package perf

import (
	"fmt"
	"sync"
	"time"

	"github.com/distlockd/distlockd/cmd/util"
	"github.com/distlockd/distlockd/rpc/client"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for distlockd servers",
		Long:    `Run a configurable number of concurrent workers against a distlockd server, each performing acquire/release cycles over a shared set of lock names, and report latency percentiles and contention counts.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}

	perfLockPrefix = "__perf"
	perfNumThreads = 10
	perfLockSpread = 100
	perfOps        = 1000
	perfWait       = 5 * time.Second
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupClientFlags(PerfCmd)

	// add flags
	key := "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent workers"))
	key = "locks"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many different lock names to spread the workers over"))
	key = "ops"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("Acquire/release cycles per worker"))
	key = "wait"
	PerfCmd.Flags().Duration(key, 5*time.Second, util.WrapString("Per-acquire wait timeout"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfNumThreads = viper.GetInt("threads")
	perfLockSpread = viper.GetInt("locks")
	perfOps = viper.GetInt("ops")
	perfWait = viper.GetDuration("wait")

	return nil
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for distlockd servers")

	// Each worker may hold a lock, which pins a pool connection, so the
	// pool must at least match the worker count.
	config := util.GetClientConfig()
	if config.PoolSize < perfNumThreads {
		config.PoolSize = perfNumThreads
	}

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Locks: %d, Ops/thread: %d, Wait: %v\n",
		perfNumThreads, perfLockSpread, perfOps, perfWait)
	fmt.Println()

	c := client.NewClient(*config)
	defer c.Close()

	if err := c.Health(); err != nil {
		return fmt.Errorf("server not reachable: %v", err)
	}

	acquireTimer := gometrics.NewTimer()
	releaseTimer := gometrics.NewTimer()
	denied := gometrics.NewCounter()
	errored := gometrics.NewCounter()

	fmt.Println("starting workers...")
	start := time.Now()

	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perfOps; i++ {
				name := fmt.Sprintf("%s-%d", perfLockPrefix, (worker*perfOps+i)%perfLockSpread)

				opStart := time.Now()
				ok, err := c.Acquire(name, perfWait)
				acquireTimer.UpdateSince(opStart)

				if err != nil {
					errored.Inc(1)
					continue
				}
				if !ok {
					denied.Inc(1)
					continue
				}

				opStart = time.Now()
				if err := c.Release(name); err != nil {
					errored.Inc(1)
					continue
				}
				releaseTimer.UpdateSince(opStart)
			}
		}(t)
	}
	wg.Wait()

	elapsed := time.Since(start)
	totalOps := int64(perfNumThreads) * int64(perfOps)

	fmt.Println()
	fmt.Printf("%d ops in %v (%.0f ops/sec)\n",
		totalOps, elapsed.Round(time.Millisecond), float64(totalOps)/elapsed.Seconds())
	fmt.Printf("denied: %d, errors: %d\n", denied.Count(), errored.Count())
	fmt.Println()
	printTimer("acquire", acquireTimer)
	printTimer("release", releaseTimer)

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printTimer prints the latency distribution of a timer in a formatted way
func printTimer(name string, t gometrics.Timer) {
	if t.Count() == 0 {
		fmt.Printf("%-10sskipped\n", name)
		return
	}

	ps := t.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-10smean %-12v p50 %-12v p95 %-12v p99 %v\n",
		name,
		time.Duration(t.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		time.Duration(ps[2]).Round(time.Microsecond),
	)
}
