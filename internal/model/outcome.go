package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementType discriminates how an inbound transaction was settled.
type SettlementType string

const (
	SettlementNative       SettlementType = "native"
	SettlementBridgedToken SettlementType = "bridged-token"
	SettlementBridgeOut    SettlementType = "bridge-out"
	SettlementSkipped      SettlementType = "skipped"
)

// SettlementOutcome is the result of settling one inbound transaction.
type SettlementOutcome struct {
	Chain              string          `json:"chain"`
	Txid               string          `json:"txid"`
	PayoutTxid         string          `json:"payout_txid,omitempty"`
	BaseBalance        decimal.Decimal `json:"base_balance"`
	TokenBalance       decimal.Decimal `json:"token_balance"`
	Type               SettlementType  `json:"type"`
	Amount             decimal.Decimal `json:"amount"`
	DestinationAddress string          `json:"destination_address,omitempty"`
	// Reason explains a skipped outcome that was rejected rather than ignored.
	Reason    string    `json:"reason,omitempty"`
	SettledAt time.Time `json:"settled_at"`
}
