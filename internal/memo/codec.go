// Package memo encodes and decodes bridge instructions carried in a
// transaction memo.
//
// On the wire a memo is base64 of the text "<code>:<destination>", for example
// "1:bitcoincash:qpm2...". Memos that do not follow this layout are ordinary
// payments and decode to an invalid instruction rather than an error.
package memo

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"tokenLiquidity/internal/model"
)

// Codec decodes memos for one bridge. Instructions that send funds back to
// the bridge address are rejected as self-transfers.
type Codec struct {
	bridgeAddress string
}

func NewCodec(bridgeAddress string) *Codec {
	return &Codec{bridgeAddress: normalize(bridgeAddress)}
}

// Encode builds the base64 memo for an instruction.
func Encode(code int, destination string) string {
	text := strconv.Itoa(code) + ":" + destination
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// DecodeValue decodes a memo taken from a loosely typed payload.
func (c *Codec) DecodeValue(encoded interface{}) (model.BridgeInstruction, error) {
	s, ok := encoded.(string)
	if !ok {
		return model.BridgeInstruction{}, fmt.Errorf("%w: encoded memo must be of type string, got %T", model.ErrInvalidArgument, encoded)
	}
	return c.Decode(s), nil
}

// Decode parses a base64 memo. It never fails; anything that is not a valid
// bridge instruction comes back with IsValid false.
func (c *Codec) Decode(encoded string) model.BridgeInstruction {
	text, ok := ParseMemo(encoded)
	if !ok {
		return model.BridgeInstruction{}
	}

	rawCode, destination, found := strings.Cut(text, ":")
	if !found {
		return model.BridgeInstruction{}
	}
	code, err := strconv.Atoi(strings.TrimSpace(rawCode))
	if err != nil {
		return model.BridgeInstruction{}
	}

	destination = strings.TrimSpace(destination)
	if !ValidDestination(code, destination) {
		return model.BridgeInstruction{}
	}
	if c.bridgeAddress != "" && strings.EqualFold(normalize(destination), c.bridgeAddress) {
		return model.BridgeInstruction{}
	}

	return model.BridgeInstruction{
		IsValid:            true,
		Code:               code,
		DestinationAddress: destination,
	}
}

// ValidDestination reports whether destination suits code: a base-chain
// address for CodeBridge and CodeSell, a bridged-chain address for
// CodeBridgeOut.
func ValidDestination(code int, destination string) bool {
	switch code {
	case model.CodeBridge, model.CodeSell:
		return ValidAddress(destination)
	case model.CodeBridgeOut:
		return ValidEVMAddress(destination)
	default:
		return false
	}
}

// ParseMemo returns the text carried by a base64 memo with surrounding
// control bytes and whitespace removed.
func ParseMemo(encoded string) (string, bool) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	text := strings.TrimFunc(string(raw), func(r rune) bool {
		return unicode.IsControl(r) || unicode.IsSpace(r)
	})
	return text, text != ""
}

// ExtractUserAddress returns the address that funded tx.
func ExtractUserAddress(tx model.ChainTx) (string, error) {
	for _, in := range tx.Inputs {
		if in.Address != "" {
			return in.Address, nil
		}
	}
	return "", fmt.Errorf("%w: tx %s has no input address", model.ErrInvalidArgument, tx.ID)
}
