// Package main provides icoctl, a command line client for a fixed-supply token sale:
// - status, role, quote: read-only views of the sale and the signer
// - buy, init, deposit: validated sale actions signed with a local keypair
// - serve: watch the sale and expose /health, /metrics and /status
// - report: sale progress and journaled actions from stored history
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"solana-token-sale/internal/config"
	"solana-token-sale/internal/observability"
)

var (
	v          = config.New()
	configFile string
	envFile    string

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "icoctl",
	Short: "Client for a fixed-supply token sale program",
	Long: `icoctl discovers the sale, classifies the signer as administrator or buyer,
pre-validates requests against the program's limits and submits them.

Settings come from flags, ICO_* environment variables, an optional config file
and an optional .env file, in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}

		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err = observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		logrus.SetLevel(logger.GetLevel())
		logrus.SetFormatter(logger.Formatter)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&envFile, "env-file", ".env", "env file loaded before reading the environment")

	flags.String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	flags.String("ws-endpoint", "", "Solana WebSocket endpoint")
	flags.String("commitment", "", "commitment level: processed, confirmed or finalized")
	flags.String("program-id", "", "sale program id")
	flags.String("mint", "", "sale token mint")
	flags.String("expected-admin", "", "preferred sale admin when several sales exist")
	flags.String("keypair", "", "path to a solana-keygen keypair file")
	flags.String("postgres-dsn", "", "PostgreSQL connection string for the action journal")
	flags.String("clickhouse-dsn", "", "ClickHouse connection string for snapshot history")
	flags.Bool("use-memory", false, "use in-memory storage instead of PostgreSQL and ClickHouse")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format: text or json")

	bindFlag(v, "rpc_endpoint", "rpc-endpoint")
	bindFlag(v, "ws_endpoint", "ws-endpoint")
	bindFlag(v, "commitment", "commitment")
	bindFlag(v, "program_id", "program-id")
	bindFlag(v, "mint", "mint")
	bindFlag(v, "expected_admin", "expected-admin")
	bindFlag(v, "keypair_path", "keypair")
	bindFlag(v, "postgres_dsn", "postgres-dsn")
	bindFlag(v, "clickhouse_dsn", "clickhouse-dsn")
	bindFlag(v, "use_memory", "use-memory")
	bindFlag(v, "log_level", "log-level")
	bindFlag(v, "log_format", "log-format")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
