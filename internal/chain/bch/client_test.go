package bch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/model"
)

const (
	poolAddr = "bitcoincash:qr95sy3j9xwd2ap32xkykttr4cvcu7as4y0qverfuy"
	userAddr = "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"
	tokenID  = "38e97c5d7d3585a2cbf3f9580c82ca33985f9cb0845d4dcce220cb709f9538b0"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{IndexerURL: srv.URL, WalletURL: srv.URL + "/wallet", TokenID: tokenID}, nil, nil)
	require.NoError(t, err)
	return client
}

func TestBalanceAndHistory(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/address/"+poolAddr+"/balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"balance":"12.41463259","txids":["t1","t2"]}`))
	}))

	info, err := client.Balance(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.True(t, info.Balance.Equal(decimal.RequireFromString("12.41463259")))
	assert.Equal(t, []string{"t1", "t2"}, info.Txids)

	txids, err := client.History(poolAddr).FetchTxids(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, txids)
}

func TestBalanceErrorPropagates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := client.BaseBalance(context.Background(), poolAddr)
	require.ErrorIs(t, err, model.ErrCollaborator)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestTransactionKeepsPoolTokenOnly(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx/abc", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"txid":"abc","confirmations":2,"blockheight":800000,"memo":"",
			"vin":[{"address":"` + userAddr + `","value":"1.5"}],
			"vout":[
				{"address":"` + poolAddr + `","value":"0.00000546","tokenId":"` + tokenID + `","tokenQty":"500"},
				{"address":"` + poolAddr + `","value":"0.00000546","tokenId":"other","tokenQty":"9"},
				{"address":"` + userAddr + `","value":"1.4"}
			]}`))
	}))

	tx, err := client.Transaction(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tx.ID)
	assert.Equal(t, int64(2), tx.Confirmations)
	assert.Equal(t, uint64(800000), tx.BlockNumber)
	require.Len(t, tx.Inputs, 1)
	assert.Equal(t, userAddr, tx.Inputs[0].Address)
	require.Len(t, tx.Outputs, 3)
	assert.True(t, tx.Outputs[0].TokenAmount.Equal(decimal.NewFromInt(500)))
	assert.True(t, tx.Outputs[1].TokenAmount.IsZero())

	confs, err := client.Confirmations(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(2), confs)
}

func TestTokenBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slp/balance/"+poolAddr+"/"+tokenID, r.URL.Path)
		_, _ = w.Write([]byte(`{"balance":3500.5}`))
	}))

	balance, err := client.TokenBalance(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("3500.5")))
}

func TestSendAndSendToken(t *testing.T) {
	var paths []string
	var bodies []sendRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body sendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"txid":"payout"}`))
	}))

	txid, err := client.Send(context.Background(), userAddr, decimal.RequireFromString("1.1814112"))
	require.NoError(t, err)
	assert.Equal(t, "payout", txid)

	txid, err = client.SendToken(context.Background(), userAddr, decimal.NewFromInt(499))
	require.NoError(t, err)
	assert.Equal(t, "payout", txid)

	assert.Equal(t, []string{"/wallet/send", "/wallet/send-token"}, paths)
	assert.True(t, bodies[0].Amount.Equal(decimal.RequireFromString("1.1814112")))
	assert.Empty(t, bodies[0].TokenID)
	assert.Equal(t, tokenID, bodies[1].TokenID)
}

func TestSendRejectsNonPositive(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	_, err := client.Send(context.Background(), userAddr, decimal.Zero)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestSendWithoutWalletIsCollaboratorFailure(t *testing.T) {
	client, err := NewClient(Config{IndexerURL: "http://indexer.invalid"}, nil, nil)
	require.NoError(t, err)

	_, err = client.Send(context.Background(), userAddr, decimal.NewFromInt(1))
	require.ErrorIs(t, err, model.ErrCollaborator)
	_, err = client.SendToken(context.Background(), userAddr, decimal.NewFromInt(1))
	require.ErrorIs(t, err, model.ErrCollaborator)
}
