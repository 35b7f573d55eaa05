// Package bch talks to the base chain: a REST indexer for reads and a REST
// wallet service that signs and broadcasts payouts.
package bch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenLiquidity/internal/model"
	"tokenLiquidity/internal/transport"
)

// Config locates the indexer and wallet services.
type Config struct {
	IndexerURL string
	WalletURL  string
	APIKey     string
	TokenID    string
	Timeout    time.Duration
}

// Client reads the base chain and pays out from the pool wallet.
type Client struct {
	indexer *transport.Client
	wallet  *transport.Client
	tokenID string
	logger  *zap.Logger
}

// NewClient builds a Client. doer may be nil.
func NewClient(cfg Config, doer transport.Doer, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.IndexerURL) == "" {
		return nil, fmt.Errorf("%w: indexer url is required", model.ErrInvalidArgument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		indexer: transport.NewClient(cfg.IndexerURL, doer, cfg.Timeout).WithAPIKey(cfg.APIKey),
		tokenID: cfg.TokenID,
		logger:  logger,
	}
	if cfg.WalletURL != "" {
		c.wallet = transport.NewClient(cfg.WalletURL, doer, cfg.Timeout).WithAPIKey(cfg.APIKey)
	}
	return c, nil
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
	Txids   []string        `json:"txids"`
}

// Balance returns the confirmed BCH balance of addr with its txid history,
// oldest first.
func (c *Client) Balance(ctx context.Context, addr string) (model.AddressBalance, error) {
	var resp balanceResponse
	if err := c.indexer.GetJSON(ctx, "/address/"+url.PathEscape(addr)+"/balance", &resp); err != nil {
		return model.AddressBalance{}, err
	}
	return model.AddressBalance{Balance: resp.Balance, Txids: resp.Txids}, nil
}

// BaseBalance returns only the BCH balance of addr.
func (c *Client) BaseBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	info, err := c.Balance(ctx, addr)
	if err != nil {
		return decimal.Zero, err
	}
	return info.Balance, nil
}

type tokenBalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// TokenBalance returns the pool token balance of addr.
func (c *Client) TokenBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	if c.tokenID == "" {
		return decimal.Zero, fmt.Errorf("%w: token id is not configured", model.ErrInvalidArgument)
	}
	var resp tokenBalanceResponse
	path := "/slp/balance/" + url.PathEscape(addr) + "/" + url.PathEscape(c.tokenID)
	if err := c.indexer.GetJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

type txInput struct {
	Address string          `json:"address"`
	Value   decimal.Decimal `json:"value"`
}

type txOutput struct {
	Address  string          `json:"address"`
	Value    decimal.Decimal `json:"value"`
	TokenID  string          `json:"tokenId"`
	TokenQty decimal.Decimal `json:"tokenQty"`
}

type txResponse struct {
	Txid          string     `json:"txid"`
	Confirmations int64      `json:"confirmations"`
	BlockHeight   uint64     `json:"blockheight"`
	Memo          string     `json:"memo"`
	Vin           []txInput  `json:"vin"`
	Vout          []txOutput `json:"vout"`
}

// Transaction returns the details of txid. Token quantities of other tokens
// are dropped.
func (c *Client) Transaction(ctx context.Context, txid string) (model.ChainTx, error) {
	var resp txResponse
	if err := c.indexer.GetJSON(ctx, "/tx/"+url.PathEscape(txid), &resp); err != nil {
		return model.ChainTx{}, err
	}

	tx := model.ChainTx{
		ID:            resp.Txid,
		Memo:          resp.Memo,
		BlockNumber:   resp.BlockHeight,
		Confirmations: resp.Confirmations,
		Inputs:        make([]model.TxInput, 0, len(resp.Vin)),
		Outputs:       make([]model.TxOutput, 0, len(resp.Vout)),
	}
	if tx.ID == "" {
		tx.ID = txid
	}
	for _, in := range resp.Vin {
		tx.Inputs = append(tx.Inputs, model.TxInput{Address: in.Address, Amount: in.Value})
	}
	for _, out := range resp.Vout {
		output := model.TxOutput{Address: out.Address, Amount: out.Value}
		if out.TokenID != "" && out.TokenID == c.tokenID {
			output.TokenAmount = out.TokenQty
		}
		tx.Outputs = append(tx.Outputs, output)
	}
	return tx, nil
}

// Confirmations returns the confirmation count of txid.
func (c *Client) Confirmations(ctx context.Context, txid string) (int64, error) {
	tx, err := c.Transaction(ctx, txid)
	if err != nil {
		return 0, err
	}
	return tx.Confirmations, nil
}

// History returns a txid history source bound to addr.
func (c *Client) History(addr string) *AddressHistory {
	return &AddressHistory{client: c, addr: addr}
}

// AddressHistory lists the txids of one address.
type AddressHistory struct {
	client *Client
	addr   string
}

func (h *AddressHistory) FetchTxids(ctx context.Context) ([]string, error) {
	info, err := h.client.Balance(ctx, h.addr)
	if err != nil {
		return nil, err
	}
	return info.Txids, nil
}

type sendRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
	TokenID string          `json:"tokenId,omitempty"`
}

type sendResponse struct {
	Txid string `json:"txid"`
}

// Send pays amount BCH to addr and returns the broadcast txid.
func (c *Client) Send(ctx context.Context, addr string, amount decimal.Decimal) (string, error) {
	return c.send(ctx, "/send", sendRequest{Address: addr, Amount: amount})
}

// SendToken pays amount pool tokens to addr and returns the broadcast txid.
func (c *Client) SendToken(ctx context.Context, addr string, amount decimal.Decimal) (string, error) {
	if c.tokenID == "" {
		return "", fmt.Errorf("%w: token id is not configured", model.ErrCollaborator)
	}
	return c.send(ctx, "/send-token", sendRequest{Address: addr, Amount: amount, TokenID: c.tokenID})
}

func (c *Client) send(ctx context.Context, path string, req sendRequest) (string, error) {
	if c.wallet == nil {
		return "", fmt.Errorf("%w: wallet url is not configured", model.ErrCollaborator)
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive, got %s", model.ErrInvalidArgument, req.Amount)
	}

	var resp sendResponse
	if err := c.wallet.PostJSON(ctx, path, req, &resp); err != nil {
		return "", err
	}
	if resp.Txid == "" {
		return "", fmt.Errorf("%w: wallet returned no txid", model.ErrCollaborator)
	}
	c.logger.Info("payout broadcast", zap.String("path", path), zap.String("to", req.Address), zap.String("amount", req.Amount.String()), zap.String("txid", resp.Txid))
	return resp.Txid, nil
}
