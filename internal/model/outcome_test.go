package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkippedOutcomeKeepsZeroAmount(t *testing.T) {
	raw, err := json.Marshal(SettlementOutcome{Chain: "bch", Txid: "t1", Type: SettlementSkipped})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0", fields["amount"])
	assert.NotContains(t, fields, "reason")
}
