package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tokenLiquidity/internal/curve"
	"tokenLiquidity/internal/ledger"
	"tokenLiquidity/internal/memo"
	"tokenLiquidity/internal/model"
	"tokenLiquidity/internal/storage/postgres"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	side, _ := cmd.Flags().GetString("side")
	amountRaw, _ := cmd.Flags().GetString("amount")
	baseRaw, _ := cmd.Flags().GetString("base-balance")

	amount, err := decimal.NewFromString(strings.TrimSpace(amountRaw))
	if err != nil {
		return fmt.Errorf("%w: amount: %v", model.ErrInvalidArgument, err)
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	baseBalance := decimal.Zero
	if baseRaw != "" {
		baseBalance, err = decimal.NewFromString(baseRaw)
		if err != nil {
			return fmt.Errorf("%w: base-balance: %v", model.ErrInvalidArgument, err)
		}
	} else {
		baseBalance, err = a.bch.BaseBalance(cmd.Context(), cfg.PoolAddress)
		if err != nil {
			return err
		}
	}

	result, err := quote(a.engine, side, amount, baseBalance)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func quote(engine *curve.Engine, side string, amount, baseBalance decimal.Decimal) (curve.ExchangeResult, error) {
	switch side {
	case "sell-token":
		return engine.SellToken(amount, baseBalance)
	case "sell-base":
		return engine.SellBase(amount, baseBalance)
	default:
		return curve.ExchangeResult{}, fmt.Errorf("%w: unknown side %q", model.ErrInvalidArgument, side)
	}
}

func runPrice(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	price, err := a.ledger.CurrentPrice(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), price)
	return err
}

func runBalances(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	balances, err := a.ledger.BlockchainBalances(cmd.Context(), cfg.PoolAddress)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), balances)
}

func runCheckLast(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	txid, _ := cmd.Flags().GetString("txid")

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.ledger.CompareLastTransaction(cmd.Context(), ledger.LastTxRequest{
		BaseAddress: cfg.PoolAddress,
		Txid:        txid,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("schema ready")
	return nil
}

func runMemo(cmd *cobra.Command, _ []string) error {
	code, _ := cmd.Flags().GetInt("code")
	dest, _ := cmd.Flags().GetString("dest")
	if code != model.CodeBridge && code != model.CodeSell && code != model.CodeBridgeOut {
		return fmt.Errorf("%w: unknown code %d", model.ErrInvalidArgument, code)
	}
	if !memo.ValidDestination(code, dest) {
		return fmt.Errorf("%w: invalid destination %q", model.ErrInvalidArgument, dest)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), memo.Encode(code, dest))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
