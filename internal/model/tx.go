package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TxRecord is a transaction observed on a monitored chain.
type TxRecord struct {
	Txid          string `json:"txid"`
	Confirmations int64  `json:"confirmations"`
}

// TxInput is one funding input of a chain transaction.
type TxInput struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// TxOutput is one output of a chain transaction. TokenAmount is set when the
// output carries the pool token.
type TxOutput struct {
	Address     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	TokenAmount decimal.Decimal `json:"token_amount"`
}

// ChainTx is a transaction as reported by a chain history collaborator.
// RawAmount is the token amount in base units for chains that report one.
type ChainTx struct {
	ID            string     `json:"id"`
	Memo          string     `json:"memo"`
	Inputs        []TxInput  `json:"inputs"`
	Outputs       []TxOutput `json:"outputs"`
	BlockNumber   uint64     `json:"block_number,omitempty"`
	Confirmations int64      `json:"confirmations,omitempty"`
	RawAmount     *big.Int   `json:"raw_amount,omitempty"`
}

// AddressBalance is the confirmed balance of an address with its txid history
// in chain order.
type AddressBalance struct {
	Balance decimal.Decimal `json:"balance"`
	Txids   []string        `json:"txids"`
}
