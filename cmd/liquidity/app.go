package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenLiquidity/internal/chain/bch"
	"tokenLiquidity/internal/chain/evm"
	"tokenLiquidity/internal/config"
	"tokenLiquidity/internal/curve"
	"tokenLiquidity/internal/detector"
	"tokenLiquidity/internal/exchange"
	"tokenLiquidity/internal/ledger"
	"tokenLiquidity/internal/model"
	"tokenLiquidity/internal/pricefeed"
	"tokenLiquidity/internal/storage"
	"tokenLiquidity/internal/storage/postgres"
)

// app holds the collaborators shared by the commands.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	genesis model.Genesis
	engine  *curve.Engine
	pool    *model.Pool
	bch     *bch.Client
	feed    *pricefeed.Coinbase
	store   *postgres.Store
	ledger  *ledger.Ledger

	closers []func()
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newApp wires the pool, base chain client, rate feed and snapshot store.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, err
	}
	engine, err := curve.New(curve.AnchorsFrom(genesis))
	if err != nil {
		return nil, err
	}

	bchClient, err := bch.NewClient(bch.Config{
		IndexerURL: cfg.IndexerURL,
		WalletURL:  cfg.WalletURL,
		APIKey:     cfg.APIKey,
		TokenID:    cfg.TokenID,
		Timeout:    cfg.HTTPTimeout,
	}, nil, logger.Named("bch"))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		genesis: genesis,
		engine:  engine,
		pool:    model.NewPool(genesis, genesis.BaseOriginalBalance, genesis.TokenOriginalBalance),
		bch:     bchClient,
		feed:    pricefeed.NewCoinbase(cfg.PriceURL, cfg.PriceCurrency, nil, cfg.HTTPTimeout),
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	a.ledger = ledger.New(engine, a.pool, bchClient, bchClient, a.feed, a.snapshotStore(), ledger.Config{
		BaseAddress:  cfg.PoolAddress,
		TokenAddress: cfg.SLPAddress,
	}, logger.Named("ledger"))
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func (a *app) snapshotStore() ledger.SnapshotStore {
	if a.store != nil {
		return &ledger.DBSnapshotStore{Store: a.store, Name: a.cfg.SnapshotName}
	}
	return &ledger.FileSnapshotStore{Path: a.cfg.SnapshotFile}
}

func (a *app) seenStore() detector.SeenStore {
	if a.store != nil {
		return a.store
	}
	return detector.NewFileSeenStore(a.cfg.SeenFile)
}

func (a *app) outcomeSink() storage.OutcomeSink {
	if a.store != nil {
		return a.store
	}
	return storage.NewJsonlStorage(a.cfg.Out)
}

func (a *app) journal() exchange.Journal {
	if a.store != nil {
		return a.store
	}
	return exchange.NewFileJournal(a.cfg.JournalFile)
}

// bridge connects the bridged chain when an RPC URL is configured.
func (a *app) bridge(ctx context.Context) (*evm.Token, error) {
	if !a.cfg.BridgeEnabled() {
		return nil, nil
	}
	client, err := evm.NewClient(ctx, a.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	return evm.NewToken(client, evm.Config{
		TokenAddress:  a.cfg.EVMToken,
		BridgeAddress: a.cfg.EVMBridge,
		PrivateKey:    a.cfg.EVMKey,
		StartBlock:    a.cfg.EVMStartBlock,
		BatchSize:     a.cfg.BatchSize,
	}, a.logger.Named("evm"))
}

// loadPool sets the pool reserves from chain, falling back to the last
// snapshot when the chain cannot be read.
func (a *app) loadPool(ctx context.Context) error {
	balances, err := a.ledger.RefreshBalances(ctx)
	if err == nil {
		a.logger.Info("pool balances from chain",
			zap.String("base_balance", balances.BaseBalance.String()),
			zap.String("token_balance", balances.TokenBalance.String()),
		)
		return nil
	}

	snap, snapErr := a.snapshotStore().LoadSnapshot(ctx)
	if snapErr != nil {
		return fmt.Errorf("load pool balances: %w", err)
	}
	a.logger.Warn("pool balances from snapshot", zap.Error(err), zap.Time("snapshot_at", snap.UpdatedAt))
	a.pool.SetBalances(snap.BaseBalance, snap.TokenBalance)
	a.pool.SetUSDPerBase(snap.USDPerBase)
	return nil
}
