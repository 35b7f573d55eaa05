// Package ledger reconciles the pool's believed balances with the chains and
// answers price queries, falling back to a persisted snapshot when the rate
// feed is down.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenLiquidity/internal/curve"
	"tokenLiquidity/internal/model"
)

// BaseChain reports the base-currency balance and history of an address.
type BaseChain interface {
	Balance(ctx context.Context, addr string) (model.AddressBalance, error)
}

// TokenChain reports the pool token balance of an address.
type TokenChain interface {
	TokenBalance(ctx context.Context, addr string) (decimal.Decimal, error)
}

// RateFeed returns the USD price of one unit of base currency.
type RateFeed interface {
	USDPerBase(ctx context.Context) (decimal.Decimal, error)
}

// ErrStaleBalances reports chain balances read while a settlement changed
// the pool; they were not applied.
var ErrStaleBalances = errors.New("balances read during settlement were discarded")

// Balances are live chain balances of the pool.
type Balances struct {
	BaseBalance  decimal.Decimal `json:"base_balance"`
	TokenBalance decimal.Decimal `json:"token_balance"`
}

// Config names the pool addresses. TokenAddress defaults to BaseAddress.
type Config struct {
	BaseAddress  string
	TokenAddress string
}

// Ledger owns balance refreshes and price snapshots for one pool.
type Ledger struct {
	engine    *curve.Engine
	pool      *model.Pool
	base      BaseChain
	token     TokenChain
	feed      RateFeed
	snapshots SnapshotStore
	cfg       Config
	logger    *zap.Logger
}

func New(engine *curve.Engine, pool *model.Pool, base BaseChain, token TokenChain, feed RateFeed, snapshots SnapshotStore, cfg Config, logger *zap.Logger) *Ledger {
	if cfg.TokenAddress == "" {
		cfg.TokenAddress = cfg.BaseAddress
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		engine:    engine,
		pool:      pool,
		base:      base,
		token:     token,
		feed:      feed,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger,
	}
}

// BlockchainBalances queries both balance collaborators. If either fails its
// error is returned unchanged and nothing is reported.
func (l *Ledger) BlockchainBalances(ctx context.Context, baseAddr string) (Balances, error) {
	if baseAddr == "" {
		baseAddr = l.cfg.BaseAddress
	}
	info, err := l.base.Balance(ctx, baseAddr)
	if err != nil {
		return Balances{}, err
	}
	tokenBalance, err := l.token.TokenBalance(ctx, l.tokenAddressFor(baseAddr))
	if err != nil {
		return Balances{}, err
	}
	return Balances{BaseBalance: info.Balance, TokenBalance: tokenBalance}, nil
}

// RefreshBalances replaces the pool reserves with live chain balances. When a
// settlement updates the pool while the balances are being fetched, the
// settled reserves win and ErrStaleBalances is returned with the fetched
// values.
func (l *Ledger) RefreshBalances(ctx context.Context) (Balances, error) {
	gen := l.pool.Generation()
	balances, err := l.BlockchainBalances(ctx, l.cfg.BaseAddress)
	if err != nil {
		return Balances{}, err
	}
	if !l.pool.SetBalancesIf(gen, balances.BaseBalance, balances.TokenBalance) {
		l.logger.Info("pool settled during refresh, keeping settled balances",
			zap.String("chain_base_balance", balances.BaseBalance.String()),
		)
		return balances, ErrStaleBalances
	}
	return balances, nil
}

// CurrentPrice returns the token spot price in USD. The live feed is tried
// first; when it fails the last snapshot is used, and when that fails too its
// error is returned.
func (l *Ledger) CurrentPrice(ctx context.Context) (string, error) {
	rate, feedErr := l.liveRate(ctx)
	if feedErr == nil {
		l.pool.SetUSDPerBase(rate)
		baseBalance, err := l.baseBalance(ctx)
		if err != nil {
			return "", err
		}
		price, err := l.engine.SpotPrice(baseBalance, rate)
		if err != nil {
			return "", err
		}
		return price.String(), nil
	}

	l.logger.Warn("exchange rate unavailable, using snapshot", zap.Error(feedErr))
	snap, err := l.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return "", err
	}
	baseBalance := l.pool.Snapshot().BaseBalance
	if !baseBalance.IsPositive() {
		baseBalance = snap.BaseBalance
	}
	price, err := l.engine.SpotPrice(baseBalance, snap.USDPerBase)
	if err != nil {
		return "", err
	}
	return price.String(), nil
}

func (l *Ledger) liveRate(ctx context.Context) (decimal.Decimal, error) {
	if l.feed == nil {
		return decimal.Zero, fmt.Errorf("%w: no exchange rate feed", model.ErrCollaborator)
	}
	return l.feed.USDPerBase(ctx)
}

func (l *Ledger) baseBalance(ctx context.Context) (decimal.Decimal, error) {
	if balance := l.pool.Snapshot().BaseBalance; balance.IsPositive() {
		return balance, nil
	}
	info, err := l.base.Balance(ctx, l.cfg.BaseAddress)
	if err != nil {
		return decimal.Zero, err
	}
	return info.Balance, nil
}

// SaveState checkpoints the pool state. The spot price is stored when the
// rate and base balance are known.
func (l *Ledger) SaveState(ctx context.Context) (model.Snapshot, error) {
	return l.SaveStateOf(ctx, l.pool.Snapshot())
}

// SaveStateOf checkpoints state without touching the pool lock, for callers
// already inside Pool.Update.
func (l *Ledger) SaveStateOf(ctx context.Context, state model.PoolState) (model.Snapshot, error) {
	spot := decimal.Zero
	if state.BaseBalance.IsPositive() && state.USDPerBase.IsPositive() {
		price, err := l.engine.SpotPrice(state.BaseBalance, state.USDPerBase)
		if err != nil {
			return model.Snapshot{}, err
		}
		spot = price
	}
	snap := model.SnapshotOf(state, spot)
	if err := l.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// LastTxRequest carries the txid last known to the caller.
type LastTxRequest struct {
	BaseAddress string
	Txid        string
}

// LastTxResult reports whether the address history moved past Txid.
type LastTxResult struct {
	LastTransaction string   `json:"last_transaction"`
	Changed         bool     `json:"changed"`
	Balances        Balances `json:"balances"`
}

// CompareLastTransaction checks whether a transaction newer than req.Txid
// reached the base address and, if so, refreshes the pool balances. It does
// not settle anything; the reconcile loop is authoritative.
func (l *Ledger) CompareLastTransaction(ctx context.Context, req LastTxRequest) (LastTxResult, error) {
	addr := req.BaseAddress
	if addr == "" {
		addr = l.cfg.BaseAddress
	}
	gen := l.pool.Generation()
	info, err := l.base.Balance(ctx, addr)
	if err != nil {
		return LastTxResult{}, err
	}
	if len(info.Txids) == 0 {
		return LastTxResult{}, nil
	}

	last := info.Txids[len(info.Txids)-1]
	if last == req.Txid {
		return LastTxResult{LastTransaction: last}, nil
	}

	tokenBalance, err := l.token.TokenBalance(ctx, l.tokenAddressFor(addr))
	if err != nil {
		return LastTxResult{}, err
	}
	balances := Balances{BaseBalance: info.Balance, TokenBalance: tokenBalance}
	if addr == l.cfg.BaseAddress && !l.pool.SetBalancesIf(gen, balances.BaseBalance, balances.TokenBalance) {
		l.logger.Info("pool settled during comparison, keeping settled balances")
	}
	l.logger.Info("new transaction at pool address", zap.String("previous", req.Txid), zap.String("last", last))
	return LastTxResult{LastTransaction: last, Changed: true, Balances: balances}, nil
}

func (l *Ledger) tokenAddressFor(addr string) string {
	if addr == l.cfg.BaseAddress {
		return l.cfg.TokenAddress
	}
	return addr
}
