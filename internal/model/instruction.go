package model

import "github.com/shopspring/decimal"

// Bridge operation codes carried in a memo. CodeBridge and CodeSell arrive
// with bridged tokens; CodeBridgeOut arrives with pool tokens on the base
// chain and names a bridged-chain destination.
const (
	CodeBridge    = 1
	CodeSell      = 2
	CodeBridgeOut = 3
)

// BridgeInstruction is a cross-chain request decoded from a memo. IsValid is
// false for memos that do not follow the bridge layout or that target the
// bridge itself. Amount is filled once the carrying transaction is known.
type BridgeInstruction struct {
	IsValid            bool            `json:"is_valid"`
	Code               int             `json:"code,omitempty"`
	DestinationAddress string          `json:"destination_address,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
}
