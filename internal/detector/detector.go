// Package detector finds transactions on a monitored chain that the pool has
// not processed yet.
package detector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tokenLiquidity/internal/model"
)

// HistoryFetcher returns the txid history of the monitored address in chain
// order, oldest first.
type HistoryFetcher interface {
	FetchTxids(ctx context.Context) ([]string, error)
}

// ConfirmationCounter reports confirmations for chains that expose them
// separately from the history call.
type ConfirmationCounter interface {
	Confirmations(ctx context.Context, txid string) (int64, error)
}

// Detector computes the unseen part of a chain history.
type Detector struct {
	confirmations ConfirmationCounter
	logger        *zap.Logger
}

// NewDetector builds a Detector. confirmations may be nil, in which case
// records carry zero confirmations.
func NewDetector(confirmations ConfirmationCounter, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{confirmations: confirmations, logger: logger}
}

// DetectNew fetches the current history and returns the txids absent from
// seen, in history order. Fetch errors are returned unchanged.
func (d *Detector) DetectNew(ctx context.Context, seen *SeenSet, history HistoryFetcher) ([]model.TxRecord, error) {
	if history == nil {
		return nil, fmt.Errorf("%w: history fetcher is nil", model.ErrInvalidArgument)
	}

	txids, err := history.FetchTxids(ctx)
	if err != nil {
		return nil, err
	}

	unseen := FilterNewTxids(seen, txids)
	records := make([]model.TxRecord, 0, len(unseen))
	for _, txid := range unseen {
		record := model.TxRecord{Txid: txid}
		if d.confirmations != nil {
			confs, err := d.confirmations.Confirmations(ctx, txid)
			if err != nil {
				return nil, err
			}
			record.Confirmations = confs
		}
		records = append(records, record)
	}

	if len(records) > 0 {
		d.logger.Debug("unseen transactions", zap.Int("count", len(records)), zap.Int("history", len(txids)))
	}
	return records, nil
}

// FilterNewTxids returns the txids not in seen, preserving order and dropping
// repeats within txids.
func FilterNewTxids(seen *SeenSet, txids []string) []string {
	out := make([]string, 0)
	batch := make(map[string]struct{}, len(txids))
	for _, txid := range txids {
		if txid == "" || seen.Has(txid) {
			continue
		}
		if _, dup := batch[txid]; dup {
			continue
		}
		batch[txid] = struct{}{}
		out = append(out, txid)
	}
	return out
}

// FilterNewByChain returns the transactions of raw whose id is not in seen.
// It performs no I/O.
func FilterNewByChain(seen *SeenSet, raw []model.ChainTx) []model.ChainTx {
	out := make([]model.ChainTx, 0)
	batch := make(map[string]struct{}, len(raw))
	for _, tx := range raw {
		if tx.ID == "" || seen.Has(tx.ID) {
			continue
		}
		if _, dup := batch[tx.ID]; dup {
			continue
		}
		batch[tx.ID] = struct{}{}
		out = append(out, tx)
	}
	return out
}
