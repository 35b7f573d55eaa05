package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPoolUpdateKeepsAnchors(t *testing.T) {
	pool := NewPool(Genesis{
		BaseOriginalBalance:  decimal.NewFromInt(25),
		TokenOriginalBalance: decimal.NewFromInt(5000),
	}, decimal.NewFromInt(12), decimal.NewFromInt(8500))

	err := pool.Update(func(state *PoolState) error {
		state.BaseBalance = decimal.NewFromInt(13)
		state.BaseOriginalBalance = decimal.NewFromInt(1)
		return nil
	})
	require.NoError(t, err)

	got := pool.Snapshot()
	require.True(t, got.BaseBalance.Equal(decimal.NewFromInt(13)))
	require.True(t, got.BaseOriginalBalance.Equal(decimal.NewFromInt(25)))
}

func TestPoolUpdateKeepsPartialProgressOnError(t *testing.T) {
	pool := NewPool(Genesis{
		BaseOriginalBalance:  decimal.NewFromInt(25),
		TokenOriginalBalance: decimal.NewFromInt(5000),
	}, decimal.NewFromInt(12), decimal.Zero)

	boom := errors.New("boom")
	err := pool.Update(func(state *PoolState) error {
		state.BaseBalance = decimal.NewFromInt(10)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, pool.Snapshot().BaseBalance.Equal(decimal.NewFromInt(10)))
}

func TestPoolSetBalancesIfRejectsStaleGeneration(t *testing.T) {
	pool := NewPool(Genesis{
		BaseOriginalBalance:  decimal.NewFromInt(25),
		TokenOriginalBalance: decimal.NewFromInt(5000),
	}, decimal.NewFromInt(50), decimal.NewFromInt(-5000))

	gen := pool.Generation()
	require.NoError(t, pool.Update(func(state *PoolState) error {
		state.BaseBalance = decimal.RequireFromString("47.5")
		return nil
	}))

	require.False(t, pool.SetBalancesIf(gen, decimal.NewFromInt(50), decimal.NewFromInt(-5000)))
	require.True(t, pool.Snapshot().BaseBalance.Equal(decimal.RequireFromString("47.5")))

	require.True(t, pool.SetBalancesIf(pool.Generation(), decimal.NewFromInt(49), decimal.NewFromInt(-4800)))
	require.True(t, pool.Snapshot().BaseBalance.Equal(decimal.NewFromInt(49)))
}
