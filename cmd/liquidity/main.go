package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "liquidity",
		Short:        "Bonding-curve liquidity pool and bridge reconciler",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch both chains and settle inbound transactions",
		RunE:  runReconcile,
	}
	addPoolFlags(runCmd)
	addWalletFlags(runCmd)
	addBridgeFlags(runCmd)
	addStorageFlags(runCmd)
	runCmd.Flags().Duration("interval", 2*time.Minute, "polling interval per chain")
	runCmd.Flags().Int64("min-confirmations", 0, "confirmations required before settling")
	runCmd.Flags().Bool("seed-on-start", true, "treat existing history as processed when no seen set is stored")
	runCmd.Flags().Int("max-retries", 5, "settlement retry ceiling")
	runCmd.Flags().Duration("retry-backoff", 2*time.Second, "initial settlement retry delay")
	runCmd.Flags().Duration("retry-max-delay", time.Minute, "maximum settlement retry delay")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics, empty disables")
	runCmd.Flags().Bool("once", false, "run a single cycle per chain and exit")
	root.AddCommand(runCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a trade on the curve",
		RunE:  runQuote,
	}
	addPoolFlags(quoteCmd)
	quoteCmd.Flags().String("side", "sell-token", "sell-token or sell-base")
	quoteCmd.Flags().String("amount", "", "amount paid into the pool")
	quoteCmd.Flags().String("base-balance", "", "pool base balance, empty reads it from chain")
	root.AddCommand(quoteCmd)

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Print the token spot price in USD",
		RunE:  runPrice,
	}
	addPoolFlags(priceCmd)
	addStorageFlags(priceCmd)
	root.AddCommand(priceCmd)

	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "Print the pool balances reported by the chain",
		RunE:  runBalances,
	}
	addPoolFlags(balancesCmd)
	root.AddCommand(balancesCmd)

	checkCmd := &cobra.Command{
		Use:   "check-last",
		Short: "Report whether the pool address saw a transaction after --txid",
		RunE:  runCheckLast,
	}
	addPoolFlags(checkCmd)
	checkCmd.Flags().String("txid", "", "last txid known to the caller")
	root.AddCommand(checkCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	root.AddCommand(migrateCmd)

	memoCmd := &cobra.Command{
		Use:   "memo",
		Short: "Encode a bridge memo",
		RunE:  runMemo,
	}
	memoCmd.Flags().Int("code", 2, "instruction code (1 bridge, 2 sell, 3 bridge out)")
	memoCmd.Flags().String("dest", "", "destination address")
	root.AddCommand(memoCmd)

	return root
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("genesis-base", "", "base currency reserve at genesis")
	cmd.Flags().String("genesis-token", "", "token reserve at genesis")
	cmd.Flags().String("pool-address", "", "pool cashaddr")
	cmd.Flags().String("slp-address", "", "pool SLP address, defaults to pool-address")
	cmd.Flags().String("token-id", "", "SLP token id")
	cmd.Flags().String("indexer-url", "", "base chain indexer URL")
	cmd.Flags().String("api-key", "", "indexer and wallet API key")
	cmd.Flags().Duration("http-timeout", 30*time.Second, "HTTP request timeout")
	cmd.Flags().String("price-url", "", "exchange rate API base URL")
	cmd.Flags().String("price-currency", "BCH", "currency quoted by the rate API")
}

func addWalletFlags(cmd *cobra.Command) {
	cmd.Flags().String("wallet-url", "", "pool wallet service URL")
}

func addBridgeFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "EVM RPC URL, empty disables the bridge")
	cmd.Flags().String("evm-token", "", "bridged ERC-20 contract")
	cmd.Flags().String("evm-bridge", "", "bridge deposit address")
	cmd.Flags().String("evm-key", "", "bridge hot wallet key (hex)")
	cmd.Flags().Uint64("evm-start-block", 0, "first block scanned for deposits")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per log query")
}

func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().String("pg-dsn", "", "Postgres DSN, empty uses local files")
	cmd.Flags().String("out", "./data/outcomes.jsonl", "settlement outcomes JSONL path")
	cmd.Flags().String("seen-file", "./data/seen.json", "seen txids file")
	cmd.Flags().String("journal-file", "./data/journal.json", "settlement journal file")
	cmd.Flags().String("snapshot-file", "./data/snapshot.json", "price snapshot file")
	cmd.Flags().String("snapshot-name", "pool", "snapshot row name in Postgres")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
