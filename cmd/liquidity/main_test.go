package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/curve"
	"tokenLiquidity/internal/memo"
	"tokenLiquidity/internal/model"
)

const destAddr = "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestQuote(t *testing.T) {
	engine, err := curve.New(curve.Anchors{
		BaseOriginal:  decimal.RequireFromString("25"),
		TokenOriginal: decimal.RequireFromString("5000"),
	})
	require.NoError(t, err)

	result, err := quote(engine, "sell-token", decimal.RequireFromString("500"), decimal.RequireFromString("12.41463259"))
	require.NoError(t, err)
	assert.Equal(t, "1.1814112", result.AmountOut.String())

	_, err = quote(engine, "swap", decimal.RequireFromString("1"), decimal.RequireFromString("1"))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestQuoteCommand(t *testing.T) {
	out, err := execute(t, "quote",
		"--env-file", "",
		"--log-level", "error",
		"--genesis-base", "25",
		"--genesis-token", "5000",
		"--indexer-url", "http://127.0.0.1:1",
		"--amount", "500",
		"--base-balance", "50",
	)
	require.NoError(t, err)

	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "2.5000027", result["amount_out"])
	assert.Equal(t, "47.5", result["new_base_balance"])
	assert.Equal(t, "-4500", result["new_token_balance"])
}

func TestQuoteCommandRequiresGenesis(t *testing.T) {
	_, err := execute(t, "quote", "--env-file", "", "--amount", "1", "--base-balance", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "genesis-base is required")
}

func TestMemoCommand(t *testing.T) {
	out, err := execute(t, "memo", "--env-file", "", "--code", "1", "--dest", destAddr)
	require.NoError(t, err)

	encoded := strings.TrimSpace(out)
	assert.Equal(t, memo.Encode(model.CodeBridge, destAddr), encoded)

	instruction := memo.NewCodec("").Decode(encoded)
	assert.True(t, instruction.IsValid)
	assert.Equal(t, destAddr, instruction.DestinationAddress)
}

func TestMemoCommandBridgeOut(t *testing.T) {
	dest := "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	out, err := execute(t, "memo", "--env-file", "", "--code", "3", "--dest", dest)
	require.NoError(t, err)
	assert.Equal(t, memo.Encode(model.CodeBridgeOut, dest), strings.TrimSpace(out))

	_, err = execute(t, "memo", "--env-file", "", "--code", "3", "--dest", destAddr)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestMemoCommandRejectsInput(t *testing.T) {
	_, err := execute(t, "memo", "--code", "7", "--dest", destAddr)
	require.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = execute(t, "memo", "--code", "2", "--dest", "not-an-address")
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}
