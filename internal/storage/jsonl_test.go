package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "outcomes.jsonl")
	store := NewJsonlStorage(path)
	ctx := context.Background()

	first := model.SettlementOutcome{
		Chain:        "bch",
		Txid:         "tx1",
		BaseBalance:  decimal.RequireFromString("11.23322139"),
		TokenBalance: decimal.NewFromInt(4000),
		Type:         model.SettlementNative,
		Amount:       decimal.RequireFromString("1.1814112"),
		SettledAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	second := first
	second.Txid = "tx2"
	second.Type = model.SettlementSkipped

	require.NoError(t, store.PutOutcomes(ctx, []model.SettlementOutcome{first}))
	require.NoError(t, store.PutOutcomes(ctx, []model.SettlementOutcome{second}))
	require.NoError(t, store.PutOutcomes(ctx, nil))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []model.SettlementOutcome
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var outcome model.SettlementOutcome
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &outcome))
		got = append(got, outcome)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "tx1", got[0].Txid)
	assert.True(t, got[0].Amount.Equal(first.Amount))
	assert.Equal(t, model.SettlementSkipped, got[1].Type)
}
