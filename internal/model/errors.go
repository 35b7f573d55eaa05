package model

import "errors"

var (
	// ErrInvalidArgument marks missing or malformed input to a pure computation.
	// It is never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCollaborator marks a failed chain, wallet or price-feed call.
	ErrCollaborator = errors.New("collaborator failure")
	// ErrSettlementExhausted marks a settlement whose retry budget ran out.
	ErrSettlementExhausted = errors.New("settlement retries exhausted")
)
