// Package cmd implements the distlockd command line interface.
//
// The CLI is built with cobra and viper. Every flag can also be set through
// an environment variable with the DISTLOCKD_ prefix (e.g. DISTLOCKD_PORT),
// and .env / .env.local files are loaded when present. Subcommands:
//
//   - server: run the lock server
//   - lock:   client operations (try, exec, health)
//   - perf:   load generator reporting latency percentiles
package cmd
