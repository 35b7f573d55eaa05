package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the persisted price state used when the rate feed is down.
type Snapshot struct {
	USDPerBase   decimal.Decimal `json:"usd_per_base"`
	BaseBalance  decimal.Decimal `json:"base_balance"`
	TokenBalance decimal.Decimal `json:"token_balance"`
	SpotPrice    decimal.Decimal `json:"spot_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SnapshotOf builds a snapshot from pool state.
func SnapshotOf(state PoolState, spot decimal.Decimal) Snapshot {
	return Snapshot{
		USDPerBase:   state.USDPerBase,
		BaseBalance:  state.BaseBalance,
		TokenBalance: state.TokenBalance,
		SpotPrice:    spot,
		UpdatedAt:    time.Now().UTC(),
	}
}
