// Package exchange executes settlements: it prices inbound trades on the
// bonding curve and pays out on the base chain, burning bridged tokens first
// when they arrive from the bridged chain. Pool tokens sent with a bridge-out
// memo are released on the bridged chain instead.
package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenLiquidity/internal/curve"
	"tokenLiquidity/internal/memo"
	"tokenLiquidity/internal/model"
	"tokenLiquidity/internal/settle"
)

// BaseChain reads base-chain transactions and pays out from the pool.
type BaseChain interface {
	Transaction(ctx context.Context, txid string) (model.ChainTx, error)
	Send(ctx context.Context, addr string, amount decimal.Decimal) (string, error)
	SendToken(ctx context.Context, addr string, amount decimal.Decimal) (string, error)
}

// Bridge moves tokens on the bridged chain: it burns what the bridge received
// and sends tokens out of the bridge wallet.
type Bridge interface {
	BurnToken(ctx context.Context, amount decimal.Decimal) (string, error)
	SendTokens(ctx context.Context, addr string, amount decimal.Decimal) (string, error)
}

// Exchanger implements settle.Settler.
type Exchanger struct {
	engine   *curve.Engine
	base     BaseChain
	bridge   Bridge
	journal  Journal
	poolAddr string
	logger   *zap.Logger
}

// New builds an Exchanger. bridge may be nil when no bridged chain is
// configured; journal defaults to an in-memory one.
func New(engine *curve.Engine, base BaseChain, bridge Bridge, journal Journal, poolAddr string, logger *zap.Logger) (*Exchanger, error) {
	if engine == nil || base == nil {
		return nil, fmt.Errorf("%w: curve engine and base chain are required", model.ErrInvalidArgument)
	}
	if journal == nil {
		journal = NewMemoryJournal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exchanger{
		engine:   engine,
		base:     base,
		bridge:   bridge,
		journal:  journal,
		poolAddr: poolAddr,
		logger:   logger,
	}, nil
}

// Settle routes req to the bridged or native path.
func (e *Exchanger) Settle(ctx context.Context, req settle.Request) (settle.Settlement, error) {
	if req.Txid == "" {
		return settle.Settlement{}, fmt.Errorf("%w: txid is required", model.ErrInvalidArgument)
	}
	entry, _, err := e.journal.LoadJournal(ctx, req.Txid)
	if err != nil {
		return settle.Settlement{}, fmt.Errorf("load journal %s: %w", req.Txid, err)
	}
	entry.Txid = req.Txid

	if req.Instruction != nil {
		return e.settleBridged(ctx, req, entry)
	}
	return e.settleNative(ctx, req, entry)
}

func (e *Exchanger) settleBridged(ctx context.Context, req settle.Request, entry model.JournalEntry) (settle.Settlement, error) {
	instruction := req.Instruction
	if instruction.Code != model.CodeBridge && instruction.Code != model.CodeSell {
		return settle.Settlement{}, fmt.Errorf("%w: unknown bridge code %d", model.ErrInvalidArgument, instruction.Code)
	}
	if !instruction.Amount.IsPositive() {
		return settle.Settlement{}, fmt.Errorf("%w: bridged amount must be positive", model.ErrInvalidArgument)
	}
	if e.bridge == nil {
		return settle.Settlement{}, fmt.Errorf("%w: no bridge for bridged tokens", model.ErrCollaborator)
	}

	if entry.BurnTxid == "" {
		burnTxid, err := e.bridge.BurnToken(ctx, instruction.Amount)
		if err != nil {
			return settle.Settlement{}, fmt.Errorf("burn %s: %w", req.Txid, err)
		}
		entry.BurnTxid = burnTxid
		if err := e.journal.SaveJournal(ctx, entry); err != nil {
			return settle.Settlement{}, fmt.Errorf("record burn %s: %w", req.Txid, err)
		}
	}

	switch instruction.Code {
	case model.CodeBridge:
		settlement := settle.Settlement{
			BaseBalance:  req.BaseBalance,
			TokenBalance: req.TokenBalance,
			Recipient:    instruction.DestinationAddress,
			Amount:       instruction.Amount,
		}
		return e.payout(ctx, req.Txid, entry, settlement, e.base.SendToken)
	default:
		result, err := e.engine.SellToken(instruction.Amount, req.BaseBalance)
		if err != nil {
			return settle.Settlement{}, err
		}
		settlement := settle.Settlement{
			BaseBalance:  result.NewBaseBalance,
			TokenBalance: result.NewTokenBalance,
			Recipient:    instruction.DestinationAddress,
			Amount:       result.AmountOut,
		}
		return e.payout(ctx, req.Txid, entry, settlement, e.base.Send)
	}
}

func (e *Exchanger) settleNative(ctx context.Context, req settle.Request, entry model.JournalEntry) (settle.Settlement, error) {
	tx, err := e.base.Transaction(ctx, req.Txid)
	if err != nil {
		return settle.Settlement{}, fmt.Errorf("fetch tx %s: %w", req.Txid, err)
	}
	sender, err := memo.ExtractUserAddress(tx)
	if err != nil {
		return settle.Settlement{}, err
	}
	if memo.SameAddress(sender, e.poolAddr) {
		e.logger.Debug("skip pool's own transaction", zap.String("txid", req.Txid))
		return settle.Settlement{Skipped: true}, nil
	}

	baseIn, tokenIn := PaidTo(tx, e.poolAddr)
	if tokenIn.IsPositive() {
		instruction := memo.NewCodec(e.poolAddr).Decode(tx.Memo)
		if instruction.IsValid && instruction.Code == model.CodeBridgeOut {
			instruction.Amount = tokenIn
			return e.settleBridgeOut(ctx, req, entry, instruction)
		}
	}

	switch {
	case tokenIn.IsPositive():
		result, err := e.engine.SellToken(tokenIn, req.BaseBalance)
		if err != nil {
			return settle.Settlement{}, err
		}
		e.logger.Info("token sale priced",
			zap.String("txid", req.Txid),
			zap.String("token_in", tokenIn.String()),
			zap.String("base_out", result.AmountOut.String()),
		)
		settlement := settle.Settlement{
			BaseBalance:  result.NewBaseBalance,
			TokenBalance: result.NewTokenBalance,
			Recipient:    sender,
			Amount:       result.AmountOut,
		}
		return e.payout(ctx, req.Txid, entry, settlement, e.base.Send)
	case baseIn.IsPositive():
		result, err := e.engine.SellBase(baseIn, req.BaseBalance)
		if err != nil {
			return settle.Settlement{}, err
		}
		e.logger.Info("base sale priced",
			zap.String("txid", req.Txid),
			zap.String("base_in", baseIn.String()),
			zap.String("token_out", result.AmountOut.String()),
		)
		settlement := settle.Settlement{
			BaseBalance:  result.NewBaseBalance,
			TokenBalance: result.NewTokenBalance,
			Recipient:    sender,
			Amount:       result.AmountOut,
		}
		return e.payout(ctx, req.Txid, entry, settlement, e.base.SendToken)
	default:
		e.logger.Debug("skip transaction paying nothing to the pool", zap.String("txid", req.Txid))
		return settle.Settlement{Skipped: true}, nil
	}
}

// settleBridgeOut releases on the bridged chain the pool tokens paid in on
// the base chain. The curve position does not move.
func (e *Exchanger) settleBridgeOut(ctx context.Context, req settle.Request, entry model.JournalEntry, instruction model.BridgeInstruction) (settle.Settlement, error) {
	if e.bridge == nil {
		return settle.Settlement{}, fmt.Errorf("%w: bridge-out to %s requested but no bridged chain is configured", model.ErrInvalidArgument, instruction.DestinationAddress)
	}
	e.logger.Info("bridging tokens out",
		zap.String("txid", req.Txid),
		zap.String("amount", instruction.Amount.String()),
		zap.String("destination", instruction.DestinationAddress),
	)
	settlement := settle.Settlement{
		BaseBalance:  req.BaseBalance,
		TokenBalance: req.TokenBalance,
		Recipient:    instruction.DestinationAddress,
		Amount:       instruction.Amount,
		BridgedOut:   true,
	}
	return e.payout(ctx, req.Txid, entry, settlement, e.bridge.SendTokens)
}

type sendFunc func(ctx context.Context, addr string, amount decimal.Decimal) (string, error)

func (e *Exchanger) payout(ctx context.Context, txid string, entry model.JournalEntry, settlement settle.Settlement, send sendFunc) (settle.Settlement, error) {
	if entry.PayoutTxid != "" {
		settlement.PayoutTxid = entry.PayoutTxid
		return settlement, nil
	}
	payoutTxid, err := send(ctx, settlement.Recipient, settlement.Amount)
	if err != nil {
		return settle.Settlement{}, fmt.Errorf("pay %s: %w", txid, err)
	}
	entry.PayoutTxid = payoutTxid
	if err := e.journal.SaveJournal(ctx, entry); err != nil {
		e.logger.Error("payout sent but not journaled", zap.String("txid", txid), zap.String("payout", payoutTxid), zap.Error(err))
	}
	settlement.PayoutTxid = payoutTxid
	return settlement, nil
}

// PaidTo sums the base currency and pool tokens that tx sends to addr.
func PaidTo(tx model.ChainTx, addr string) (decimal.Decimal, decimal.Decimal) {
	base, token := decimal.Zero, decimal.Zero
	for _, out := range tx.Outputs {
		if !memo.SameAddress(out.Address, addr) {
			continue
		}
		base = base.Add(out.Amount)
		token = token.Add(out.TokenAmount)
	}
	return base, token
}
