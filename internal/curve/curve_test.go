package curve

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(Anchors{BaseOriginal: d("25"), TokenOriginal: d("5000")})
	require.NoError(t, err)
	return engine
}

func TestSellTokenReferenceVectors(t *testing.T) {
	engine := newEngine(t)

	cases := []struct {
		name        string
		baseBalance string
		amountOut   string
		newBase     string
		newToken    string
	}{
		{name: "below anchor", baseBalance: "12.41463259", amountOut: "1.1814112"},
		{name: "deep below anchor", baseBalance: "3.38338208", amountOut: "0.32197408"},
		{name: "above anchor", baseBalance: "55.63852321", amountOut: "2.5000027", newBase: "53.13852321", newToken: "-5627.704642"},
		{name: "negative token balance", baseBalance: "50", amountOut: "2.5000027", newBase: "47.5", newToken: "-4500"},
		{name: "negative token balance with float residue", baseBalance: "55", amountOut: "2.5000027", newBase: "52.5", newToken: "-5500.00000001"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.SellToken(d("500"), d(tc.baseBalance))
			require.NoError(t, err)
			assert.True(t, got.AmountOut.Equal(d(tc.amountOut)), "amount out %s != %s", got.AmountOut, tc.amountOut)
			if tc.newBase != "" {
				assert.True(t, got.NewBaseBalance.Equal(d(tc.newBase)), "new base %s != %s", got.NewBaseBalance, tc.newBase)
			}
			if tc.newToken != "" {
				assert.True(t, got.NewTokenBalance.Equal(d(tc.newToken)), "new token %s != %s", got.NewTokenBalance, tc.newToken)
			}
		})
	}
}

func TestSpotPriceFlatAboveAnchor(t *testing.T) {
	engine := newEngine(t)

	atAnchor, err := engine.SpotPrice(d("25"), d("100"))
	require.NoError(t, err)
	above, err := engine.SpotPrice(d("60"), d("100"))
	require.NoError(t, err)
	assert.True(t, above.Equal(atAnchor), "%s != %s", above, atAnchor)
	assert.True(t, atAnchor.Equal(d("0.5")))
}

func TestSellTokenDeterministic(t *testing.T) {
	engine := newEngine(t)

	first, err := engine.SellToken(d("123.456"), d("17.00000001"))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := engine.SellToken(d("123.456"), d("17.00000001"))
		require.NoError(t, err)
		assert.Equal(t, first.AmountOut.String(), again.AmountOut.String())
		assert.Equal(t, first.NewBaseBalance.String(), again.NewBaseBalance.String())
		assert.Equal(t, first.NewTokenBalance.String(), again.NewTokenBalance.String())
	}
	assert.LessOrEqual(t, -first.AmountOut.Exponent(), int32(8))
	assert.LessOrEqual(t, -first.NewBaseBalance.Exponent(), int32(8))
}

func TestSellTokenCrossingAnchor(t *testing.T) {
	engine := newEngine(t)

	got, err := engine.SellToken(d("500"), d("26"))
	require.NoError(t, err)
	assert.True(t, got.NewBaseBalance.LessThan(d("25")))
	assert.True(t, got.NewTokenBalance.IsPositive())
	assert.True(t, got.AmountOut.GreaterThan(d("2.4")))
	assert.True(t, got.AmountOut.LessThan(d("2.5000027")))
}

func TestSellTokenRequiresBalance(t *testing.T) {
	engine := newEngine(t)

	_, err := engine.SellToken(decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bchBalance must be defined")

	_, err = engine.SellToken(decimal.Zero, d("10"))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestSellBase(t *testing.T) {
	engine := newEngine(t)

	got, err := engine.SellBase(d("1.30565831"), d("12.41463259"))
	require.NoError(t, err)
	assert.Equal(t, int64(499), got.AmountOut.Floor().IntPart())

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, "amount_out")
	assert.Contains(t, keys, "new_base_balance")
	assert.Contains(t, keys, "new_token_balance")

	got, err = engine.SellBase(d("5.81360394"), d("3.38338208"))
	require.NoError(t, err)
	assert.Equal(t, int64(4999), got.AmountOut.Floor().IntPart())
}

func TestSellBaseErrors(t *testing.T) {
	engine := newEngine(t)

	_, err := engine.SellBase(decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bchBalance must be defined")

	_, err = engine.SellBase(d("0.0000027"), d("10"))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestRoundTripLosesOnlyFees(t *testing.T) {
	engine := newEngine(t)

	bought, err := engine.SellBase(d("1"), d("12"))
	require.NoError(t, err)
	sold, err := engine.SellToken(bought.AmountOut, bought.NewBaseBalance)
	require.NoError(t, err)

	assert.True(t, sold.AmountOut.LessThanOrEqual(d("1.00000001")), "round trip returned %s", sold.AmountOut)
	assert.True(t, sold.AmountOut.GreaterThan(d("0.999")))
}

func TestSpotPrice(t *testing.T) {
	engine := newEngine(t)

	price, err := engine.SpotPrice(d("12.44768481"), d("1"))
	require.NoError(t, err)
	assert.True(t, price.IsPositive())

	low, err := engine.SpotPrice(d("5"), d("300"))
	require.NoError(t, err)
	high, err := engine.SpotPrice(d("20"), d("300"))
	require.NoError(t, err)
	assert.True(t, low.LessThan(high))

	_, err = engine.SpotPrice(decimal.Zero, decimal.Zero)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bchBalance is required")

	_, err = engine.SpotPrice(d("12.44768481"), decimal.Zero)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "usdPerBCH is required")
}

func TestEffectiveTokenBalance(t *testing.T) {
	engine := newEngine(t)

	balance, err := engine.EffectiveTokenBalance(d("12.41463259"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(d("3500.00000193")), "got %s", balance)

	above, err := engine.EffectiveTokenBalance(d("50"))
	require.NoError(t, err)
	assert.True(t, above.Equal(d("-5000")), "got %s", above)

	_, err = engine.EffectiveTokenBalance(decimal.Zero)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bchBalance is required")
}

func TestNewRejectsNonPositiveAnchors(t *testing.T) {
	_, err := New(Anchors{BaseOriginal: decimal.Zero, TokenOriginal: d("5000")})
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = New(Anchors{BaseOriginal: d("25"), TokenOriginal: d("-1")})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}
