package storage

import (
	"context"

	"tokenLiquidity/internal/model"
)

// OutcomeSink records settlement outcomes.
type OutcomeSink interface {
	PutOutcomes(ctx context.Context, outcomes []model.SettlementOutcome) error
}

// Discard drops every outcome.
type Discard struct{}

func (Discard) PutOutcomes(context.Context, []model.SettlementOutcome) error { return nil }
