// Package evm watches, burns and sends the bridged ERC-20 token on an EVM
// chain.
//
// Deposits are plain ERC-20 transfers to the bridge address. The bridge
// memo travels as extra calldata appended after the transfer arguments.
package evm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenLiquidity/internal/model"
)

// transfer(address,uint256) selector plus two 32 byte words.
const transferCallLen = 4 + 32 + 32

// Config describes the bridged token deployment.
type Config struct {
	TokenAddress  string
	BridgeAddress string
	PrivateKey    string
	StartBlock    uint64
	BatchSize     uint64
}

// Token tracks deposits to the bridge, burns what it receives and sends
// tokens out for bridge-out requests.
type Token struct {
	backend Backend
	token   common.Address
	bridge  common.Address
	key     *ecdsa.PrivateKey
	batch   uint64
	logger  *zap.Logger

	mu        sync.Mutex
	nextBlock uint64
	history   []string
	known     map[string]struct{}
	decimals  *int32
	symbol    string
}

// NewToken builds a Token. Without a private key the Token is read-only and
// BurnToken and SendTokens fail.
func NewToken(backend Backend, cfg Config, logger *zap.Logger) (*Token, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: evm backend is nil", model.ErrInvalidArgument)
	}
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("%w: invalid token address %q", model.ErrInvalidArgument, cfg.TokenAddress)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Token{
		backend:   backend,
		token:     common.HexToAddress(cfg.TokenAddress),
		batch:     cfg.BatchSize,
		logger:    logger,
		nextBlock: cfg.StartBlock,
		known:     make(map[string]struct{}),
	}
	if t.batch == 0 {
		t.batch = 2000
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: parse bridge key: %v", model.ErrInvalidArgument, err)
		}
		t.key = key
		t.bridge = crypto.PubkeyToAddress(key.PublicKey)
	}
	if cfg.BridgeAddress != "" {
		if !common.IsHexAddress(cfg.BridgeAddress) {
			return nil, fmt.Errorf("%w: invalid bridge address %q", model.ErrInvalidArgument, cfg.BridgeAddress)
		}
		addr := common.HexToAddress(cfg.BridgeAddress)
		if t.key != nil && addr != t.bridge {
			return nil, fmt.Errorf("%w: bridge address %s does not match key address %s", model.ErrInvalidArgument, addr.Hex(), t.bridge.Hex())
		}
		t.bridge = addr
	}
	if t.bridge == (common.Address{}) {
		return nil, fmt.Errorf("%w: bridge address or key is required", model.ErrInvalidArgument)
	}
	return t, nil
}

// BridgeAddress returns the deposit address.
func (t *Token) BridgeAddress() string {
	return t.bridge.Hex()
}

// Denomination returns the token decimals.
func (t *Token) Denomination(ctx context.Context) (int32, error) {
	t.mu.Lock()
	cached := t.decimals
	t.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	values, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected decimals type %T", model.ErrCollaborator, values[0])
	}
	d := int32(dec)

	t.mu.Lock()
	t.decimals = &d
	t.mu.Unlock()
	return d, nil
}

// AssetMeta describes the token for settlement.
func (t *Token) AssetMeta(ctx context.Context) (model.AssetMeta, error) {
	denomination, err := t.Denomination(ctx)
	if err != nil {
		return model.AssetMeta{}, err
	}

	t.mu.Lock()
	symbol := t.symbol
	t.mu.Unlock()
	if symbol == "" {
		if values, err := t.call(ctx, "symbol"); err == nil {
			if s, ok := values[0].(string); ok {
				symbol = s
				t.mu.Lock()
				t.symbol = s
				t.mu.Unlock()
			}
		} else {
			t.logger.Debug("symbol call failed", zap.String("token", t.token.Hex()), zap.Error(err))
		}
	}

	return model.AssetMeta{Address: t.token.Hex(), Symbol: symbol, Denomination: denomination}, nil
}

// TokenBalance returns the token balance of addr in whole tokens.
func (t *Token) TokenBalance(ctx context.Context, addr string) (decimal.Decimal, error) {
	if !common.IsHexAddress(addr) {
		return decimal.Zero, fmt.Errorf("%w: invalid address %q", model.ErrInvalidArgument, addr)
	}
	denomination, err := t.Denomination(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	values, err := t.call(ctx, "balanceOf", common.HexToAddress(addr))
	if err != nil {
		return decimal.Zero, err
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unexpected balance type %T", model.ErrCollaborator, values[0])
	}
	return decimal.NewFromBigInt(raw, -denomination), nil
}

// FetchTxids returns the hashes of transactions that moved tokens into the
// bridge, oldest first. Each call scans only blocks not seen before.
func (t *Token) FetchTxids(ctx context.Context) ([]string, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	latest, err := t.backend.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: latest block: %v", model.ErrCollaborator, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nextBlock <= latest {
		ranges, err := SplitRange(t.nextBlock, latest, t.batch)
		if err != nil {
			return nil, err
		}
		topics := [][]common.Hash{
			{parsed.Events["Transfer"].ID},
			nil,
			{common.BytesToHash(t.bridge.Bytes())},
		}
		for _, blockRange := range ranges {
			logs, err := t.backend.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{t.token}, topics)
			if err != nil {
				return nil, fmt.Errorf("%w: filter logs %d-%d: %v", model.ErrCollaborator, blockRange.From, blockRange.To, err)
			}
			for _, lg := range logs {
				if lg.Removed {
					continue
				}
				hash := lg.TxHash.Hex()
				if _, ok := t.known[hash]; ok {
					continue
				}
				t.known[hash] = struct{}{}
				t.history = append(t.history, hash)
			}
			t.nextBlock = blockRange.To + 1
			t.logger.Debug("scanned bridge deposits", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Int("logs", len(logs)))
		}
	}

	out := make([]string, len(t.history))
	copy(out, t.history)
	return out, nil
}

// Confirmations returns the number of blocks on top of and including the
// block that mined txid.
func (t *Token) Confirmations(ctx context.Context, txid string) (int64, error) {
	receipt, err := t.backend.TransactionReceipt(ctx, common.HexToHash(txid))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: receipt %s: %v", model.ErrCollaborator, txid, err)
	}
	latest, err := t.backend.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: latest block: %v", model.ErrCollaborator, err)
	}
	if receipt.BlockNumber == nil || latest < receipt.BlockNumber.Uint64() {
		return 0, nil
	}
	return int64(latest-receipt.BlockNumber.Uint64()) + 1, nil
}

// Transaction returns the deposit made by txid: the sender, the amount that
// reached the bridge and the memo carried in the calldata.
func (t *Token) Transaction(ctx context.Context, txid string) (model.ChainTx, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return model.ChainTx{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	denomination, err := t.Denomination(ctx)
	if err != nil {
		return model.ChainTx{}, err
	}

	hash := common.HexToHash(txid)
	receipt, err := t.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return model.ChainTx{}, fmt.Errorf("%w: receipt %s: %v", model.ErrCollaborator, txid, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return model.ChainTx{}, fmt.Errorf("%w: tx %s reverted", model.ErrInvalidArgument, txid)
	}
	tx, _, err := t.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return model.ChainTx{}, fmt.Errorf("%w: tx %s: %v", model.ErrCollaborator, txid, err)
	}

	total := new(big.Int)
	var from common.Address
	transferID := parsed.Events["Transfer"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != t.token || len(lg.Topics) != 3 || lg.Topics[0] != transferID {
			continue
		}
		if common.BytesToAddress(lg.Topics[2].Bytes()) != t.bridge {
			continue
		}
		values, err := parsed.Unpack("Transfer", lg.Data)
		if err != nil {
			return model.ChainTx{}, fmt.Errorf("unpack transfer: %w", err)
		}
		value, ok := values[0].(*big.Int)
		if !ok {
			return model.ChainTx{}, fmt.Errorf("unexpected transfer value type %T", values[0])
		}
		if from == (common.Address{}) {
			from = common.BytesToAddress(lg.Topics[1].Bytes())
		}
		total.Add(total, value)
	}
	if total.Sign() == 0 {
		return model.ChainTx{}, fmt.Errorf("%w: tx %s has no deposit to the bridge", model.ErrInvalidArgument, txid)
	}

	amount := decimal.NewFromBigInt(total, -denomination)
	chainTx := model.ChainTx{
		ID:        hash.Hex(),
		Memo:      memoFromCalldata(parsed, tx.Data()),
		Inputs:    []model.TxInput{{Address: from.Hex(), Amount: amount}},
		Outputs:   []model.TxOutput{{Address: t.bridge.Hex(), TokenAmount: amount}},
		RawAmount: total,
	}
	if receipt.BlockNumber != nil {
		chainTx.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return chainTx, nil
}

// BurnToken burns amount tokens held by the bridge and returns the tx hash.
func (t *Token) BurnToken(ctx context.Context, amount decimal.Decimal) (string, error) {
	raw, err := t.rawAmount(ctx, amount)
	if err != nil {
		return "", err
	}
	hash, err := t.transact(ctx, "burn", raw)
	if err != nil {
		return "", err
	}
	t.logger.Info("burned bridged tokens", zap.String("amount", amount.String()), zap.String("tx", hash))
	return hash, nil
}

// SendTokens transfers amount tokens from the bridge wallet to addr and
// returns the tx hash.
func (t *Token) SendTokens(ctx context.Context, addr string, amount decimal.Decimal) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: invalid destination %q", model.ErrInvalidArgument, addr)
	}
	to := common.HexToAddress(addr)
	if to == t.bridge {
		return "", fmt.Errorf("%w: destination is the bridge itself", model.ErrInvalidArgument)
	}
	raw, err := t.rawAmount(ctx, amount)
	if err != nil {
		return "", err
	}
	hash, err := t.transact(ctx, "transfer", to, raw)
	if err != nil {
		return "", err
	}
	t.logger.Info("sent bridged tokens", zap.String("to", to.Hex()), zap.String("amount", amount.String()), zap.String("tx", hash))
	return hash, nil
}

func (t *Token) rawAmount(ctx context.Context, amount decimal.Decimal) (*big.Int, error) {
	if t.key == nil {
		return nil, fmt.Errorf("%w: bridge key is not configured", model.ErrCollaborator)
	}
	denomination, err := t.Denomination(ctx)
	if err != nil {
		return nil, err
	}
	return toRaw(amount, denomination)
}

// transact signs a call of method on the token contract with the bridge key
// and broadcasts it.
func (t *Token) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return "", fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}

	chainID, err := t.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: chain id: %v", model.ErrCollaborator, err)
	}
	nonce, err := t.backend.PendingNonceAt(ctx, t.bridge)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", model.ErrCollaborator, err)
	}
	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", model.ErrCollaborator, err)
	}
	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.bridge, To: &t.token, Data: data})
	if err != nil {
		return "", fmt.Errorf("%w: estimate %s gas: %v", model.ErrCollaborator, method, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &t.token,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), t.key)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", method, err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%w: send %s: %v", model.ErrCollaborator, method, err)
	}
	return signed.Hash().Hex(), nil
}

func (t *Token) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := t.backend.CallContract(ctx, ethereum.CallMsg{To: &t.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", model.ErrCollaborator, method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", model.ErrCollaborator, method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s returned nothing", model.ErrCollaborator, method)
	}
	return values, nil
}

// memoFromCalldata returns the bytes appended after transfer arguments.
func memoFromCalldata(parsed abi.ABI, data []byte) string {
	if len(data) <= transferCallLen {
		return ""
	}
	if !bytes.Equal(data[:4], parsed.Methods["transfer"].ID) {
		return ""
	}
	tail := bytes.Trim(data[transferCallLen:], "\x00")
	return strings.TrimSpace(string(tail))
}

// toRaw converts whole tokens to base units, rejecting fractions below one
// unit and values that do not fit in uint256.
func toRaw(amount decimal.Decimal, denomination int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", model.ErrInvalidArgument, amount)
	}
	shifted := amount.Shift(denomination)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: amount %s exceeds %d decimals", model.ErrInvalidArgument, amount, denomination)
	}
	raw := shifted.BigInt()
	if _, overflow := uint256.FromBig(raw); overflow {
		return nil, fmt.Errorf("%w: amount %s overflows uint256", model.ErrInvalidArgument, amount)
	}
	return raw, nil
}
