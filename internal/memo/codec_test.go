package memo

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/model"
)

const (
	evmAddr    = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	bridgeAddr = "bitcoincash:qr95sy3j9xwd2ap32xkykttr4cvcu7as4y0qverfuy"
	userAddr   = "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6a"
	legacyAddr = "1BpEi6DfDAUFd7GtittLSdBeYJvcoaVggu"
)

func TestDecodeValueRejectsNonString(t *testing.T) {
	codec := NewCodec(bridgeAddr)

	_, err := codec.DecodeValue(42)
	require.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "must be of type string")
}

func TestDecodeValid(t *testing.T) {
	codec := NewCodec(bridgeAddr)

	got, err := codec.DecodeValue("MjpiaXRjb2luY2FzaDpxcG0ycXN6bmhrczIzejc2MjltbXM2czRjd2VmNzR2Y3d2eTIyZ2R4NmE=")
	require.NoError(t, err)
	assert.True(t, got.IsValid)
	assert.Equal(t, model.CodeSell, got.Code)
	assert.Equal(t, userAddr, got.DestinationAddress)
}

func TestDecodeLegacyDestination(t *testing.T) {
	codec := NewCodec(bridgeAddr)

	got := codec.Decode(Encode(model.CodeBridge, legacyAddr))
	assert.True(t, got.IsValid)
	assert.Equal(t, model.CodeBridge, got.Code)
	assert.Equal(t, legacyAddr, got.DestinationAddress)
}

func TestDecodeBridgeOut(t *testing.T) {
	codec := NewCodec(bridgeAddr)

	got := codec.Decode(Encode(model.CodeBridgeOut, evmAddr))
	assert.True(t, got.IsValid)
	assert.Equal(t, model.CodeBridgeOut, got.Code)
	assert.Equal(t, evmAddr, got.DestinationAddress)

	assert.False(t, codec.Decode(Encode(model.CodeBridgeOut, userAddr)).IsValid)
	assert.False(t, codec.Decode(Encode(model.CodeBridge, evmAddr)).IsValid)
	assert.False(t, NewCodec(evmAddr).Decode(Encode(model.CodeBridgeOut, "0x8ba1f109551bd432803012645ac136ddd64dba72")).IsValid)
}

func TestDecodeStripsControlBytes(t *testing.T) {
	codec := NewCodec(bridgeAddr)

	raw := append([]byte{0, 0, 0, 0x0b}, []byte("1:"+userAddr+"\n")...)
	got := codec.Decode(base64.StdEncoding.EncodeToString(raw))
	assert.True(t, got.IsValid)
	assert.Equal(t, userAddr, got.DestinationAddress)
}

func TestDecodeInvalid(t *testing.T) {
	codec := NewCodec(bridgeAddr)

	cases := map[string]string{
		"plain text":       "U29tZSBtZW1vIHRvIGNoZWNrIGFmdGVy",
		"not base64":       "%%%not-base64%%%",
		"empty":            "",
		"unknown code":     Encode(7, userAddr),
		"bad checksum":     Encode(model.CodeBridge, "bitcoincash:qpm2qsznhks23z7629mms6s4cwef74vcwvy22gdx6c"),
		"bad legacy":       Encode(model.CodeBridge, "1BpEi6DfDAUFd7GtittLSdBeYJvcoaVggv"),
		"self transfer":    Encode(model.CodeBridge, bridgeAddr),
		"self upper case":  Encode(model.CodeBridge, "BITCOINCASH:QR95SY3J9XWD2AP32XKYKTTR4CVCU7AS4Y0QVERFUY"),
		"missing address":  Encode(model.CodeBridge, ""),
		"missing code sep": base64.StdEncoding.EncodeToString([]byte("bridge " + userAddr)),
	}

	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			got := codec.Decode(encoded)
			assert.False(t, got.IsValid)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	codec := NewCodec("")

	got := codec.Decode(Encode(model.CodeSell, "bchtest:qq8wqgxq0uu4y6k92pw9f7s6hxzfp9umsvtg39pzqf"))
	assert.True(t, got.IsValid)
	assert.Equal(t, model.CodeSell, got.Code)
}

func TestParseMemo(t *testing.T) {
	text, ok := ParseMemo("U29tZSBtZW1vIHRvIGNoZWNrIGFmdGVy")
	require.True(t, ok)
	assert.Equal(t, "Some memo to check after", text)

	_, ok = ParseMemo("   ")
	assert.False(t, ok)
}

func TestExtractUserAddress(t *testing.T) {
	addr, err := ExtractUserAddress(model.ChainTx{
		ID:     "abc",
		Inputs: []model.TxInput{{Address: ""}, {Address: userAddr}},
	})
	require.NoError(t, err)
	assert.Equal(t, userAddr, addr)

	_, err = ExtractUserAddress(model.ChainTx{ID: "abc"})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress(bridgeAddr, "qr95sy3j9xwd2ap32xkykttr4cvcu7as4y0qverfuy"))
	assert.True(t, SameAddress(bridgeAddr, "BITCOINCASH:QR95SY3J9XWD2AP32XKYKTTR4CVCU7AS4Y0QVERFUY"))
	assert.False(t, SameAddress(bridgeAddr, userAddr))
	assert.False(t, SameAddress("", ""))
}
