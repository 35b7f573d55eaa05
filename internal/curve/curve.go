// Package curve prices the pool token against the base currency.
//
// The curve is anchored at the genesis reserves (B0 base, T0 tokens). The
// token position t for a base reserve b is
//
//	t(b) = -T0 * ln(b / B0)     for b <= B0
//	t(b) = -T0 * (b/B0 - 1)     for b >  B0
//
// so below the anchor the price decays exponentially and above it the pool
// trades at the genesis ratio. Both branches meet with equal slope at B0.
//
// Positions are notional. A pool holding more than B0 reports a negative
// token balance; that is expected bookkeeping, not an error.
package curve

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"tokenLiquidity/internal/model"
)

const precision = 8

// NetworkFee is the 270 satoshi miner fee allowance applied to each trade.
var NetworkFee = decimal.New(270, -8)

// Anchors are the immutable genesis reserves of the curve.
type Anchors struct {
	BaseOriginal  decimal.Decimal
	TokenOriginal decimal.Decimal
}

// AnchorsFrom reads the anchors of a genesis configuration.
func AnchorsFrom(genesis model.Genesis) Anchors {
	return Anchors{
		BaseOriginal:  genesis.BaseOriginalBalance,
		TokenOriginal: genesis.TokenOriginalBalance,
	}
}

// ExchangeResult is the outcome of pricing one trade.
type ExchangeResult struct {
	AmountOut       decimal.Decimal `json:"amount_out"`
	NewBaseBalance  decimal.Decimal `json:"new_base_balance"`
	NewTokenBalance decimal.Decimal `json:"new_token_balance"`
}

// Engine evaluates trades against fixed anchors. It holds no mutable state.
type Engine struct {
	anchors Anchors
	b0      float64
	t0      float64
}

// New builds an Engine. Both anchors must be strictly positive.
func New(anchors Anchors) (*Engine, error) {
	if !anchors.BaseOriginal.IsPositive() {
		return nil, fmt.Errorf("%w: base original balance must be positive", model.ErrInvalidArgument)
	}
	if !anchors.TokenOriginal.IsPositive() {
		return nil, fmt.Errorf("%w: token original balance must be positive", model.ErrInvalidArgument)
	}
	return &Engine{
		anchors: anchors,
		b0:      anchors.BaseOriginal.InexactFloat64(),
		t0:      anchors.TokenOriginal.InexactFloat64(),
	}, nil
}

// Anchors returns the genesis reserves.
func (e *Engine) Anchors() Anchors {
	return e.anchors
}

// SellToken prices tokenIn tokens paid into a pool holding baseBalance.
// AmountOut is the base currency owed to the seller, rounded up to the
// satoshi and including the network fee allowance.
func (e *Engine) SellToken(tokenIn, baseBalance decimal.Decimal) (ExchangeResult, error) {
	if err := requireBalance(baseBalance, "bchBalance must be defined"); err != nil {
		return ExchangeResult{}, err
	}
	if !tokenIn.IsPositive() {
		return ExchangeResult{}, fmt.Errorf("%w: tokenIn must be positive", model.ErrInvalidArgument)
	}

	b1 := baseBalance.InexactFloat64()
	in := tokenIn.InexactFloat64()

	t1 := e.position(b1)
	t2 := t1 + in

	var b2, gross float64
	if t2 <= 0 {
		// Entirely on the linear branch; avoid subtracting nearly equal reserves.
		gross = in * e.b0 / e.t0
		b2 = b1 - gross
	} else {
		b2 = e.reserve(t2)
		gross = b1 - b2
	}

	newToken := round(t2)
	if t2 <= 0 {
		newToken = floorSatoshi(t2)
	}
	return ExchangeResult{
		AmountOut:       ceilSatoshi(gross).Add(NetworkFee),
		NewBaseBalance:  round(b2),
		NewTokenBalance: newToken,
	}, nil
}

// SellBase prices baseIn base currency paid into a pool holding baseBalance.
// AmountOut is the number of tokens owed to the buyer.
func (e *Engine) SellBase(baseIn, baseBalance decimal.Decimal) (ExchangeResult, error) {
	if err := requireBalance(baseBalance, "bchBalance must be defined"); err != nil {
		return ExchangeResult{}, err
	}
	net := baseIn.Sub(NetworkFee)
	if !net.IsPositive() {
		return ExchangeResult{}, fmt.Errorf("%w: baseIn %s does not cover the network fee", model.ErrInvalidArgument, baseIn)
	}

	b1 := baseBalance.InexactFloat64()
	b2 := baseBalance.Add(net).InexactFloat64()

	t1 := e.position(b1)
	t2 := e.position(b2)

	return ExchangeResult{
		AmountOut:       round(t1 - t2),
		NewBaseBalance:  round(b2),
		NewTokenBalance: round(t2),
	}, nil
}

// SpotPrice is the USD price of one token at the margin of the curve. It
// rises with baseBalance up to the anchor and stays at the genesis ratio
// above it, matching the linear branch where every token trades for B0/T0.
// The flat segment is intended; callers must not expect strict growth past B0.
func (e *Engine) SpotPrice(baseBalance, usdPerBase decimal.Decimal) (decimal.Decimal, error) {
	if err := requireBalance(baseBalance, "bchBalance is required"); err != nil {
		return decimal.Zero, err
	}
	if usdPerBase.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: usdPerBCH is required", model.ErrInvalidArgument)
	}

	marginal := baseBalance
	if baseBalance.GreaterThan(e.anchors.BaseOriginal) {
		marginal = e.anchors.BaseOriginal
	}
	perToken := marginal.DivRound(e.anchors.TokenOriginal, 16)
	return perToken.Mul(usdPerBase).Round(precision), nil
}

// EffectiveTokenBalance is the notional token position for baseBalance.
func (e *Engine) EffectiveTokenBalance(baseBalance decimal.Decimal) (decimal.Decimal, error) {
	if err := requireBalance(baseBalance, "bchBalance is required"); err != nil {
		return decimal.Zero, err
	}
	return round(e.position(baseBalance.InexactFloat64())), nil
}

func (e *Engine) position(b float64) float64 {
	if b <= e.b0 {
		return -e.t0 * math.Log(b/e.b0)
	}
	return float64(-e.t0 * (b/e.b0 - 1))
}

func (e *Engine) reserve(t float64) float64 {
	if t >= 0 {
		return e.b0 * math.Exp(-t/e.t0)
	}
	return e.b0 - t*e.b0/e.t0
}

func requireBalance(balance decimal.Decimal, msg string) error {
	if balance.IsZero() {
		return fmt.Errorf("%w: %s", model.ErrInvalidArgument, msg)
	}
	if balance.IsNegative() {
		return fmt.Errorf("%w: bchBalance must be positive, got %s", model.ErrInvalidArgument, balance)
	}
	return nil
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(precision)
}

// floorSatoshi rounds toward negative infinity at 8 decimals, flooring the
// scaled float64 value.
func floorSatoshi(v float64) decimal.Decimal {
	scaled := float64(v * 1e8)
	return decimal.NewFromFloat(math.Floor(scaled) / 1e8).Round(precision)
}

// ceilSatoshi trims float noise below 1e-12 before rounding up so an exact
// amount such as 2.5 is not bumped to 2.50000001.
func ceilSatoshi(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(12).RoundCeil(precision)
}
