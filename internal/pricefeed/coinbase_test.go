package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/model"
)

func serve(t *testing.T, status int, body string) *Coinbase {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/exchange-rates", r.URL.Path)
		assert.Equal(t, "BCH", r.URL.Query().Get("currency"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewCoinbase(srv.URL+"/v2", "", nil, 0)
}

func TestUSDPerBase(t *testing.T) {
	feed := serve(t, http.StatusOK, `{"data":{"currency":"BCH","rates":{"EUR":"220.1","USD":"245.67"}}}`)

	rate, err := feed.USDPerBase(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("245.67")))
}

func TestUSDPerBaseNumericRate(t *testing.T) {
	feed := serve(t, http.StatusOK, `{"data":{"rates":{"USD":301.5}}}`)

	rate, err := feed.USDPerBase(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("301.5")))
}

func TestUSDPerBaseFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error": {status: http.StatusInternalServerError, body: `oops`},
		"malformed":    {status: http.StatusOK, body: `{"data":`},
		"missing usd":  {status: http.StatusOK, body: `{"data":{"rates":{"EUR":"1"}}}`},
		"non numeric":  {status: http.StatusOK, body: `{"data":{"rates":{"USD":"abc"}}}`},
		"zero rate":    {status: http.StatusOK, body: `{"data":{"rates":{"USD":"0"}}}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := serve(t, tc.status, tc.body).USDPerBase(context.Background())
			assert.ErrorIs(t, err, model.ErrCollaborator)
		})
	}
}
