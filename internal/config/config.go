package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tokenLiquidity/internal/model"
)

// EnvPrefix prefixes every environment variable, e.g. LIQUIDITY_POOL_ADDRESS.
const EnvPrefix = "LIQUIDITY"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string

	GenesisBase  string
	GenesisToken string

	PoolAddress string
	SLPAddress  string
	TokenID     string
	IndexerURL  string
	WalletURL   string
	APIKey      string
	HTTPTimeout time.Duration

	PriceURL      string
	PriceCurrency string

	RPCURL        string
	EVMToken      string
	EVMBridge     string
	EVMKey        string
	EVMStartBlock uint64
	BatchSize     uint64

	Interval         time.Duration
	MinConfirmations int64
	SeedOnStart      bool
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryMaxDelay    time.Duration

	PGDSN        string
	Out          string
	SeenFile     string
	JournalFile  string
	SnapshotFile string
	SnapshotName string
	MetricsAddr  string
}

// Load merges .env, config file, environment variables, and flags into
// Config. The .env path comes from the env-file flag when present.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	envFile := ".env"
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("http-timeout", 30*time.Second)
	v.SetDefault("price-currency", "BCH")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("interval", 2*time.Minute)
	v.SetDefault("seed-on-start", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 2*time.Second)
	v.SetDefault("retry-max-delay", time.Minute)
	v.SetDefault("out", "./data/outcomes.jsonl")
	v.SetDefault("seen-file", "./data/seen.json")
	v.SetDefault("journal-file", "./data/journal.json")
	v.SetDefault("snapshot-file", "./data/snapshot.json")
	v.SetDefault("snapshot-name", "pool")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel: v.GetString("log-level"),

		GenesisBase:  v.GetString("genesis-base"),
		GenesisToken: v.GetString("genesis-token"),

		PoolAddress: v.GetString("pool-address"),
		SLPAddress:  v.GetString("slp-address"),
		TokenID:     v.GetString("token-id"),
		IndexerURL:  v.GetString("indexer-url"),
		WalletURL:   v.GetString("wallet-url"),
		APIKey:      v.GetString("api-key"),
		HTTPTimeout: v.GetDuration("http-timeout"),

		PriceURL:      v.GetString("price-url"),
		PriceCurrency: v.GetString("price-currency"),

		RPCURL:        v.GetString("rpc"),
		EVMToken:      v.GetString("evm-token"),
		EVMBridge:     v.GetString("evm-bridge"),
		EVMKey:        v.GetString("evm-key"),
		EVMStartBlock: v.GetUint64("evm-start-block"),
		BatchSize:     v.GetUint64("batch-size"),

		Interval:         v.GetDuration("interval"),
		MinConfirmations: v.GetInt64("min-confirmations"),
		SeedOnStart:      v.GetBool("seed-on-start"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		RetryMaxDelay:    v.GetDuration("retry-max-delay"),

		PGDSN:        v.GetString("pg-dsn"),
		Out:          v.GetString("out"),
		SeenFile:     v.GetString("seen-file"),
		JournalFile:  v.GetString("journal-file"),
		SnapshotFile: v.GetString("snapshot-file"),
		SnapshotName: v.GetString("snapshot-name"),
		MetricsAddr:  v.GetString("metrics-addr"),
	}

	return cfg, nil
}

// Genesis parses the curve anchors. Both must be strictly positive.
func (c Config) Genesis() (model.Genesis, error) {
	base, err := parsePositive("genesis-base", c.GenesisBase)
	if err != nil {
		return model.Genesis{}, err
	}
	token, err := parsePositive("genesis-token", c.GenesisToken)
	if err != nil {
		return model.Genesis{}, err
	}
	return model.Genesis{BaseOriginalBalance: base, TokenOriginalBalance: token}, nil
}

// BridgeEnabled reports whether the bridged chain is configured.
func (c Config) BridgeEnabled() bool {
	return strings.TrimSpace(c.RPCURL) != ""
}

// Validate checks what the run command needs.
func (c Config) Validate() error {
	if _, err := c.Genesis(); err != nil {
		return err
	}
	required := []struct {
		key string
		val string
	}{
		{"pool-address", c.PoolAddress},
		{"token-id", c.TokenID},
		{"indexer-url", c.IndexerURL},
		{"wallet-url", c.WalletURL},
	}
	for _, item := range required {
		if strings.TrimSpace(item.val) == "" {
			return fmt.Errorf("%w: %s is required", model.ErrInvalidArgument, item.key)
		}
	}
	if c.BridgeEnabled() && c.EVMToken == "" {
		return fmt.Errorf("%w: evm-token is required when rpc is set", model.ErrInvalidArgument)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", model.ErrInvalidArgument)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max-retries must not be negative", model.ErrInvalidArgument)
	}
	return nil
}

func parsePositive(key, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: %s is required", model.ErrInvalidArgument, key)
	}
	val, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", model.ErrInvalidArgument, key, err)
	}
	if !val.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive", model.ErrInvalidArgument, key)
	}
	return val, nil
}
