// Package settle drives the settlement of one inbound transaction with
// bounded retries and classifies the result.
package settle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenLiquidity/internal/memo"
	"tokenLiquidity/internal/model"
)

// Request is one inbound transaction to settle against the current pool.
type Request struct {
	Chain        string
	Txid         string
	Memo         string
	Sender       string
	RawAmount    *big.Int
	BaseBalance  decimal.Decimal
	TokenBalance decimal.Decimal

	// Set by the Processor on the bridged-token path, with Amount already
	// scaled by the asset denomination.
	Instruction *model.BridgeInstruction
}

// Settlement is what a Settler reports after paying out.
type Settlement struct {
	PayoutTxid   string
	BaseBalance  decimal.Decimal
	TokenBalance decimal.Decimal
	Recipient    string
	Amount       decimal.Decimal
	Skipped      bool
	// BridgedOut marks pool tokens released on the bridged chain.
	BridgedOut bool
}

// Settler performs the actual burn, mint or send for a request. It must be
// safe to call again for a request whose previous attempt failed midway.
type Settler interface {
	Settle(ctx context.Context, req Request) (Settlement, error)
}

// Observer is notified of settlement attempts. It may be nil.
type Observer interface {
	ObserveSettlement(chain string, outcome model.SettlementType, attempts int, err error)
}

// Processor wraps a Settler with the retry policy.
type Processor struct {
	settler  Settler
	codec    *memo.Codec
	policy   Policy
	observer Observer
	logger   *zap.Logger
}

func NewProcessor(settler Settler, codec *memo.Codec, policy Policy, observer Observer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		settler:  settler,
		codec:    codec,
		policy:   policy,
		observer: observer,
		logger:   logger,
	}
}

// SettleWithRetry settles req. isTokenTx selects the bridged-token path,
// where the memo is decoded and the raw amount is scaled by the asset's
// denomination. A memo that is not a bridge instruction yields a skipped
// outcome without calling the settler. When retries run out the error wraps
// model.ErrSettlementExhausted.
func (p *Processor) SettleWithRetry(ctx context.Context, req *Request, isTokenTx bool, asset model.AssetMeta) (model.SettlementOutcome, error) {
	if req == nil {
		return model.SettlementOutcome{}, fmt.Errorf("%w: obj is undefined", model.ErrInvalidArgument)
	}
	if p.settler == nil {
		return model.SettlementOutcome{}, fmt.Errorf("%w: settler is nil", model.ErrInvalidArgument)
	}

	work := *req
	kind := model.SettlementNative
	if isTokenTx {
		kind = model.SettlementBridgedToken
		if p.codec == nil {
			return model.SettlementOutcome{}, fmt.Errorf("%w: memo codec is nil", model.ErrInvalidArgument)
		}
		instruction := p.codec.Decode(work.Memo)
		if !instruction.IsValid || instruction.Code == model.CodeBridgeOut {
			p.logger.Info("skip non-bridge transaction", zap.String("chain", work.Chain), zap.String("txid", work.Txid))
			p.observe(work.Chain, model.SettlementSkipped, 0, nil)
			return skipped(work), nil
		}
		if work.RawAmount == nil || work.RawAmount.Sign() <= 0 {
			return model.SettlementOutcome{}, fmt.Errorf("%w: tx %s carries no token amount", model.ErrInvalidArgument, work.Txid)
		}
		instruction.Amount = decimal.NewFromBigInt(work.RawAmount, -asset.Denomination)
		work.Instruction = &instruction
	}

	var result Settlement
	attempts, err := Retry(ctx, p.policy, func(ctx context.Context) error {
		var err error
		result, err = p.settler.Settle(ctx, work)
		if err != nil {
			p.logger.Warn("settlement attempt failed", zap.Error(err), zap.String("chain", work.Chain), zap.String("txid", work.Txid))
		}
		return err
	})
	if err != nil {
		p.observe(work.Chain, kind, attempts, err)
		if errors.Is(err, model.ErrInvalidArgument) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.SettlementOutcome{}, err
		}
		return model.SettlementOutcome{}, fmt.Errorf("%w: tx %s after %d attempts: %w", model.ErrSettlementExhausted, work.Txid, attempts, err)
	}

	if result.Skipped {
		p.observe(work.Chain, model.SettlementSkipped, attempts, nil)
		return skipped(work), nil
	}
	if result.BridgedOut {
		kind = model.SettlementBridgeOut
	}
	p.observe(work.Chain, kind, attempts, nil)

	outcome := model.SettlementOutcome{
		Chain:              work.Chain,
		Txid:               work.Txid,
		PayoutTxid:         result.PayoutTxid,
		BaseBalance:        result.BaseBalance,
		TokenBalance:       result.TokenBalance,
		Type:               kind,
		Amount:             result.Amount,
		DestinationAddress: result.Recipient,
		SettledAt:          time.Now().UTC(),
	}
	if isTokenTx {
		outcome.Amount = work.Instruction.Amount
		outcome.DestinationAddress = work.Instruction.DestinationAddress
	}
	return outcome, nil
}

func (p *Processor) observe(chain string, kind model.SettlementType, attempts int, err error) {
	if p.observer != nil {
		p.observer.ObserveSettlement(chain, kind, attempts, err)
	}
}

func skipped(req Request) model.SettlementOutcome {
	return model.SettlementOutcome{
		Chain:        req.Chain,
		Txid:         req.Txid,
		BaseBalance:  req.BaseBalance,
		TokenBalance: req.TokenBalance,
		Type:         model.SettlementSkipped,
		SettledAt:    time.Now().UTC(),
	}
}
