package serve

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/distlockd/distlockd/cmd/util"
	"github.com/distlockd/distlockd/lib/locktable"
	"github.com/distlockd/distlockd/rpc/common"
	"github.com/distlockd/distlockd/rpc/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "server",
		Short:   "Start the distlockd server",
		Long:    `Start the distlockd server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DISTLOCKD_<flag> (e.g. DISTLOCKD_PORT=8888)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "host"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0", cmdUtil.WrapString("Host to bind the server to"))

	key = "port"
	ServeCmd.PersistentFlags().IntP(key, "p", 8888, cmdUtil.WrapString("Port to listen on"))

	key = "verbose"
	ServeCmd.PersistentFlags().BoolP(key, "v", false, cmdUtil.WrapString("Enable verbose logging (overrides log-level with debug)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warning, error, critical)"))

	key = "max-hold"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Maximum time a session may hold a lock before it is force-released (e.g. 30s). Zero disables the limit"))

	key = "drain-timeout"
	ServeCmd.PersistentFlags().Duration(key, 5*time.Second, cmdUtil.WrapString("How long a graceful shutdown waits for open sessions before force-closing them"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional host:port to expose Prometheus metrics on (e.g. 127.0.0.1:9090). Empty disables metrics"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Host = viper.GetString("host")
	serveCmdConfig.Port = viper.GetInt("port")
	serveCmdConfig.MaxHold = viper.GetDuration("max-hold")
	serveCmdConfig.DrainTimeout = viper.GetDuration("drain-timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if viper.GetBool("verbose") {
		serveCmdConfig.LogLevel = "debug"
	}

	// validate the log level and apply it to all loggers
	level, err := common.ParseLogLevel(serveCmdConfig.LogLevel)
	if err != nil {
		return err
	}
	common.InitLoggers(level)

	return nil
}

// run starts the distlockd server and blocks until it is terminated
func run(_ *cobra.Command, _ []string) error {
	// stop on SIGINT/SIGTERM, second signal kills the process
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table := locktable.New(serveCmdConfig.MaxHold)
	srv := server.NewServer(*serveCmdConfig, table)

	return srv.Serve(ctx)
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("distlockd")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
