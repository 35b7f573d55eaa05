// Package pricefeed reads the USD price of the base currency.
package pricefeed

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"tokenLiquidity/internal/model"
	"tokenLiquidity/internal/transport"
)

const DefaultURL = "https://api.coinbase.com/v2"

// Coinbase queries the exchange-rates endpoint.
type Coinbase struct {
	client   *transport.Client
	currency string
}

func NewCoinbase(baseURL, currency string, doer transport.Doer, timeout time.Duration) *Coinbase {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if currency == "" {
		currency = "BCH"
	}
	return &Coinbase{client: transport.NewClient(baseURL, doer, timeout), currency: currency}
}

type ratesResponse struct {
	Data struct {
		Currency string                      `json:"currency"`
		Rates    map[string]*decimal.Decimal `json:"rates"`
	} `json:"data"`
}

// USDPerBase returns the current USD rate. Any transport failure, non-2xx
// status or missing rate is an ErrCollaborator.
func (c *Coinbase) USDPerBase(ctx context.Context) (decimal.Decimal, error) {
	var resp ratesResponse
	if err := c.client.GetJSON(ctx, "/exchange-rates?currency="+url.QueryEscape(c.currency), &resp); err != nil {
		return decimal.Zero, err
	}
	rate := resp.Data.Rates["USD"]
	if rate == nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: exchange rate response has no USD rate", model.ErrCollaborator)
	}
	return *rate, nil
}
