package model

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Genesis holds the immutable curve anchors configured at pool creation.
type Genesis struct {
	BaseOriginalBalance  decimal.Decimal `json:"base_original_balance"`
	TokenOriginalBalance decimal.Decimal `json:"token_original_balance"`
}

// PoolState is a point-in-time view of the pool reserves.
//
// TokenBalance is notional: it tracks the position on the bonding curve and
// may go negative once the pool holds more base currency than at genesis.
// It is not a custodied token quantity.
type PoolState struct {
	BaseBalance          decimal.Decimal `json:"base_balance"`
	TokenBalance         decimal.Decimal `json:"token_balance"`
	BaseOriginalBalance  decimal.Decimal `json:"base_original_balance"`
	TokenOriginalBalance decimal.Decimal `json:"token_original_balance"`
	USDPerBase           decimal.Decimal `json:"usd_per_base"`
}

// Pool guards the live PoolState shared by the per-chain reconcilers.
// Every Update bumps the generation so a writer holding values read outside
// the lock can tell whether a settlement happened in between.
type Pool struct {
	mu    sync.Mutex
	state PoolState
	gen   uint64
}

// NewPool creates a pool whose anchors come from genesis.
func NewPool(genesis Genesis, baseBalance, tokenBalance decimal.Decimal) *Pool {
	return &Pool{state: PoolState{
		BaseBalance:          baseBalance,
		TokenBalance:         tokenBalance,
		BaseOriginalBalance:  genesis.BaseOriginalBalance,
		TokenOriginalBalance: genesis.TokenOriginalBalance,
	}}
}

// Snapshot returns a copy of the current state.
func (p *Pool) Snapshot() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Update runs fn with exclusive access to the state. Anchors are restored
// after fn returns so they cannot drift.
func (p *Pool) Update(fn func(state *PoolState) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.state
	err := fn(&next)
	next.BaseOriginalBalance = p.state.BaseOriginalBalance
	next.TokenOriginalBalance = p.state.TokenOriginalBalance
	p.state = next
	p.gen++
	return err
}

// Generation returns the number of completed updates.
func (p *Pool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// SetBalancesIf replaces the live reserves only when no Update ran since
// generation gen was observed. It reports whether the reserves were applied.
func (p *Pool) SetBalancesIf(gen uint64, baseBalance, tokenBalance decimal.Decimal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false
	}
	p.state.BaseBalance = baseBalance
	p.state.TokenBalance = tokenBalance
	return true
}

// SetBalances replaces the live reserves.
func (p *Pool) SetBalances(baseBalance, tokenBalance decimal.Decimal) {
	p.mu.Lock()
	p.state.BaseBalance = baseBalance
	p.state.TokenBalance = tokenBalance
	p.mu.Unlock()
}

// SetUSDPerBase records the latest exchange rate.
func (p *Pool) SetUSDPerBase(rate decimal.Decimal) {
	p.mu.Lock()
	p.state.USDPerBase = rate
	p.mu.Unlock()
}
