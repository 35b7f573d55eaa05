// Package reconcile runs the polling loop: one task per monitored chain
// detects unseen inbound transactions and settles them one at a time against
// the shared pool.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokenLiquidity/internal/detector"
	"tokenLiquidity/internal/ledger"
	"tokenLiquidity/internal/metrics"
	"tokenLiquidity/internal/model"
	"tokenLiquidity/internal/settle"
	"tokenLiquidity/internal/storage"
)

// DefaultInterval is the polling period of each chain task.
const DefaultInterval = 2 * time.Minute

// TxLookup returns the details of one transaction.
type TxLookup interface {
	Transaction(ctx context.Context, txid string) (model.ChainTx, error)
}

// AssetSource describes the bridged token.
type AssetSource interface {
	AssetMeta(ctx context.Context) (model.AssetMeta, error)
}

// Settler settles one inbound transaction; *settle.Processor implements it.
type Settler interface {
	SettleWithRetry(ctx context.Context, req *settle.Request, isTokenTx bool, asset model.AssetMeta) (model.SettlementOutcome, error)
}

// StateSync refreshes and checkpoints pool state; *ledger.Ledger implements it.
type StateSync interface {
	RefreshBalances(ctx context.Context) (ledger.Balances, error)
	SaveStateOf(ctx context.Context, state model.PoolState) (model.Snapshot, error)
	CurrentPrice(ctx context.Context) (string, error)
}

// Source is one monitored chain.
type Source struct {
	Chain         string
	History       detector.HistoryFetcher
	Confirmations detector.ConfirmationCounter
	// Lookup fills memo, sender and raw amount before settlement. The base
	// chain leaves it nil because the settler reads the transaction itself.
	Lookup    TxLookup
	Asset     AssetSource
	IsTokenTx bool
	// RefreshWhenIdle reloads pool balances from chain after a cycle that
	// found nothing to settle.
	RefreshWhenIdle bool
}

// Config holds runtime settings of the loop.
type Config struct {
	Interval         time.Duration
	MinConfirmations int64
	// SeedOnStart marks the current history as processed when a chain has
	// no persisted seen set.
	SeedOnStart bool
}

// Deps are the collaborators shared by all chain tasks.
type Deps struct {
	Pool     *model.Pool
	Settler  Settler
	State    StateSync
	Seen     detector.SeenStore
	Outcomes storage.OutcomeSink
	Metrics  *metrics.Metrics
}

// CycleResult summarizes one cycle of one chain.
type CycleResult struct {
	Chain    string
	Detected int
	Pending  int
	Outcomes []model.SettlementOutcome
}

type watcher struct {
	src      Source
	detector *detector.Detector
	seen     *detector.SeenSet
	asset    model.AssetMeta
}

// Runner owns the per-chain seen sets and drives the cycles.
type Runner struct {
	cfg      Config
	deps     Deps
	logger   *zap.Logger
	watchers []*watcher
	ready    bool
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg Config, deps Deps, sources []Source, logger *zap.Logger) (*Runner, error) {
	if deps.Pool == nil || deps.Settler == nil {
		return nil, fmt.Errorf("%w: pool and settler are required", model.ErrInvalidArgument)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: at least one chain source is required", model.ErrInvalidArgument)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if deps.Outcomes == nil {
		deps.Outcomes = storage.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watchers := make([]*watcher, 0, len(sources))
	names := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if src.Chain == "" || src.History == nil {
			return nil, fmt.Errorf("%w: source needs a chain name and history", model.ErrInvalidArgument)
		}
		if _, dup := names[src.Chain]; dup {
			return nil, fmt.Errorf("%w: duplicate chain %q", model.ErrInvalidArgument, src.Chain)
		}
		names[src.Chain] = struct{}{}
		watchers = append(watchers, &watcher{
			src:      src,
			detector: detector.NewDetector(src.Confirmations, logger.With(zap.String("chain", src.Chain))),
			seen:     detector.NewSeenSet(),
		})
	}

	return &Runner{cfg: cfg, deps: deps, logger: logger, watchers: watchers}, nil
}

// Init loads persisted seen sets, seeds empty ones from history when
// configured, and resolves bridged asset metadata.
func (r *Runner) Init(ctx context.Context) error {
	for _, w := range r.watchers {
		if err := r.initWatcher(ctx, w); err != nil {
			return fmt.Errorf("init %s: %w", w.src.Chain, err)
		}
	}
	r.ready = true
	return nil
}

func (r *Runner) initWatcher(ctx context.Context, w *watcher) error {
	if r.deps.Seen != nil {
		txids, err := r.deps.Seen.LoadSeen(ctx, w.src.Chain)
		if err != nil {
			return fmt.Errorf("load seen: %w", err)
		}
		w.seen.Add(txids...)
	}

	if w.seen.Len() == 0 && r.cfg.SeedOnStart {
		txids, err := w.src.History.FetchTxids(ctx)
		if err != nil {
			return fmt.Errorf("seed history: %w", err)
		}
		added := w.seen.Add(txids...)
		if err := r.persistSeen(ctx, w.src.Chain, added...); err != nil {
			return err
		}
		r.logger.Info("seeded seen set", zap.String("chain", w.src.Chain), zap.Int("txids", len(added)))
	}

	if w.src.IsTokenTx && w.src.Asset != nil {
		asset, err := w.src.Asset.AssetMeta(ctx)
		if err != nil {
			return fmt.Errorf("asset meta: %w", err)
		}
		w.asset = asset
	}
	return nil
}

// Run starts one task per chain and blocks until ctx is done or Init fails.
func (r *Runner) Run(ctx context.Context) error {
	if !r.ready {
		if err := r.Init(ctx); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.watchers {
		g.Go(func() error {
			return r.loop(ctx, w)
		})
	}
	return g.Wait()
}

// RunOnce runs a single cycle of every chain in order.
func (r *Runner) RunOnce(ctx context.Context) ([]CycleResult, error) {
	if !r.ready {
		if err := r.Init(ctx); err != nil {
			return nil, err
		}
	}

	results := make([]CycleResult, 0, len(r.watchers))
	var errs []error
	for _, w := range r.watchers {
		result, err := r.cycle(ctx, w)
		results = append(results, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.src.Chain, err))
		}
	}
	return results, errors.Join(errs...)
}

func (r *Runner) loop(ctx context.Context, w *watcher) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.cycle(ctx, w); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("cycle failed", zap.String("chain", w.src.Chain), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) cycle(ctx context.Context, w *watcher) (CycleResult, error) {
	start := time.Now()
	result, err := r.runCycle(ctx, w)
	r.deps.Metrics.ObserveCycle(w.src.Chain, result.Detected, time.Since(start), err)
	return result, err
}

func (r *Runner) runCycle(ctx context.Context, w *watcher) (CycleResult, error) {
	result := CycleResult{Chain: w.src.Chain}

	records, err := w.detector.DetectNew(ctx, w.seen, w.src.History)
	if err != nil {
		return result, fmt.Errorf("detect: %w", err)
	}
	result.Detected = len(records)

	if len(records) == 0 {
		if w.src.RefreshWhenIdle {
			r.refresh(ctx)
		}
		return result, nil
	}

	ready := records
	for i, record := range records {
		if r.cfg.MinConfirmations > 0 && record.Confirmations < r.cfg.MinConfirmations {
			ready = records[:i]
			result.Pending = len(records) - i
			r.logger.Info("waiting for confirmations",
				zap.String("chain", w.src.Chain),
				zap.String("txid", record.Txid),
				zap.Int64("confirmations", record.Confirmations),
			)
			break
		}
	}

	var stepErr error
	updateErr := r.deps.Pool.Update(func(state *model.PoolState) error {
		next, outcomes, err := r.step(ctx, w, *state, ready)
		*state = next
		result.Outcomes = outcomes
		stepErr = err
		return nil
	})
	if updateErr != nil {
		return result, updateErr
	}
	if len(result.Outcomes) > 0 {
		r.publish(ctx)
	}
	return result, stepErr
}

// Step settles records of chain in order starting from state and returns the
// state after the last successful settlement. A transaction that can never
// settle (its lookup or settlement fails with model.ErrInvalidArgument) is
// recorded as skipped with the reason and the step moves on. Any other
// failure stops the step; the failed txid and everything after it stay unseen
// for the next cycle. Each outcome is recorded in the seen set, the outcome
// sink and the snapshot before the next record is touched.
//
// Step does not take the pool lock. Callers sharing a pool with a running
// loop must go through Pool.Update.
func (r *Runner) Step(ctx context.Context, chain string, state model.PoolState, records []model.TxRecord) (model.PoolState, []model.SettlementOutcome, error) {
	for _, w := range r.watchers {
		if w.src.Chain == chain {
			return r.step(ctx, w, state, records)
		}
	}
	return state, nil, fmt.Errorf("%w: unknown chain %q", model.ErrInvalidArgument, chain)
}

func (r *Runner) step(ctx context.Context, w *watcher, state model.PoolState, records []model.TxRecord) (model.PoolState, []model.SettlementOutcome, error) {
	outcomes := make([]model.SettlementOutcome, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return state, outcomes, err
		}

		var outcome model.SettlementOutcome
		req, err := r.request(ctx, w, record.Txid, state)
		if err == nil {
			outcome, err = r.deps.Settler.SettleWithRetry(ctx, req, w.src.IsTokenTx, w.asset)
		}
		if err != nil {
			if !errors.Is(err, model.ErrInvalidArgument) || ctx.Err() != nil {
				r.logger.Error("settlement failed",
					zap.String("chain", w.src.Chain),
					zap.String("txid", record.Txid),
					zap.Error(err),
				)
				return state, outcomes, fmt.Errorf("tx %s: %w", record.Txid, err)
			}
			r.logger.Warn("rejecting transaction",
				zap.String("chain", w.src.Chain),
				zap.String("txid", record.Txid),
				zap.Error(err),
			)
			outcome = rejected(w.src.Chain, record.Txid, state, err)
		}

		if outcome.Type != model.SettlementSkipped {
			state.BaseBalance = outcome.BaseBalance
			state.TokenBalance = outcome.TokenBalance
		}
		if err := r.commit(ctx, w, outcome, state); err != nil {
			return state, outcomes, err
		}
		outcomes = append(outcomes, outcome)

		r.logger.Info("settled",
			zap.String("chain", w.src.Chain),
			zap.String("txid", outcome.Txid),
			zap.String("type", string(outcome.Type)),
			zap.String("payout_txid", outcome.PayoutTxid),
			zap.String("base_balance", state.BaseBalance.String()),
			zap.String("token_balance", state.TokenBalance.String()),
		)
	}
	return state, outcomes, nil
}

func rejected(chain, txid string, state model.PoolState, err error) model.SettlementOutcome {
	return model.SettlementOutcome{
		Chain:        chain,
		Txid:         txid,
		BaseBalance:  state.BaseBalance,
		TokenBalance: state.TokenBalance,
		Type:         model.SettlementSkipped,
		Reason:       err.Error(),
		SettledAt:    time.Now().UTC(),
	}
}

func (r *Runner) request(ctx context.Context, w *watcher, txid string, state model.PoolState) (*settle.Request, error) {
	req := &settle.Request{
		Chain:        w.src.Chain,
		Txid:         txid,
		BaseBalance:  state.BaseBalance,
		TokenBalance: state.TokenBalance,
	}
	if w.src.Lookup == nil {
		return req, nil
	}

	tx, err := w.src.Lookup.Transaction(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	req.Memo = tx.Memo
	req.RawAmount = tx.RawAmount
	if len(tx.Inputs) > 0 {
		req.Sender = tx.Inputs[0].Address
	}
	return req, nil
}

func (r *Runner) commit(ctx context.Context, w *watcher, outcome model.SettlementOutcome, state model.PoolState) error {
	if err := r.deps.Outcomes.PutOutcomes(ctx, []model.SettlementOutcome{outcome}); err != nil {
		return fmt.Errorf("store outcome %s: %w", outcome.Txid, err)
	}
	w.seen.Add(outcome.Txid)
	if err := r.persistSeen(ctx, w.src.Chain, outcome.Txid); err != nil {
		return err
	}
	if r.deps.State != nil {
		if _, err := r.deps.State.SaveStateOf(ctx, state); err != nil {
			r.logger.Warn("save snapshot failed", zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) persistSeen(ctx context.Context, chain string, txids ...string) error {
	if r.deps.Seen == nil || len(txids) == 0 {
		return nil
	}
	if err := r.deps.Seen.AppendSeen(ctx, chain, txids...); err != nil {
		return fmt.Errorf("persist seen: %w", err)
	}
	return nil
}

func (r *Runner) refresh(ctx context.Context) {
	if r.deps.State == nil {
		return
	}
	if _, err := r.deps.State.RefreshBalances(ctx); err != nil {
		if errors.Is(err, ledger.ErrStaleBalances) {
			r.logger.Debug("refresh raced a settlement", zap.Error(err))
		} else {
			r.logger.Warn("refresh balances failed", zap.Error(err))
		}
		return
	}
	r.publish(ctx)
}

// publish recomputes the spot price and exports the pool gauges.
func (r *Runner) publish(ctx context.Context) {
	var spot float64
	if r.deps.State != nil {
		price, err := r.deps.State.CurrentPrice(ctx)
		if err != nil {
			r.logger.Warn("spot price unavailable", zap.Error(err))
		} else {
			r.logger.Info("spot price", zap.String("usd", price))
			if v, err := decimal.NewFromString(price); err == nil {
				spot = v.InexactFloat64()
			}
		}
	}
	r.deps.Metrics.ObservePool(r.deps.Pool.Snapshot(), spot)
}
