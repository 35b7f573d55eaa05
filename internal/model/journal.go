package model

import "time"

// JournalEntry records the completed steps of a settlement so a retry
// resumes instead of repeating a burn or payout.
type JournalEntry struct {
	Txid       string    `json:"txid"`
	BurnTxid   string    `json:"burn_txid,omitempty"`
	PayoutTxid string    `json:"payout_txid,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
