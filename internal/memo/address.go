package memo

import (
	"bytes"
	"crypto/sha256"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

const cashAddrCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var cashAddrPrefixes = []string{"bitcoincash", "bchtest", "bchreg"}

// ValidAddress reports whether addr is a well-formed Bitcoin Cash address,
// either CashAddr with a network prefix or legacy base58check.
func ValidAddress(addr string) bool {
	if strings.Contains(addr, ":") {
		return validCashAddr(addr)
	}
	return validLegacy(addr)
}

// ValidEVMAddress reports whether addr is a 0x-prefixed EVM account address.
func ValidEVMAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// normalize folds case and drops a CashAddr prefix so two spellings of the
// same address compare equal.
func normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.IndexByte(addr, ':'); i >= 0 {
		return strings.ToLower(addr[i+1:])
	}
	return addr
}

// SameAddress reports whether a and b name the same address, ignoring the
// CashAddr prefix and case.
func SameAddress(a, b string) bool {
	return a != "" && normalize(a) == normalize(b)
}

func validCashAddr(addr string) bool {
	if strings.ToLower(addr) != addr && strings.ToUpper(addr) != addr {
		return false
	}
	addr = strings.ToLower(addr)

	prefix, payload, ok := strings.Cut(addr, ":")
	if !ok || payload == "" {
		return false
	}
	known := false
	for _, p := range cashAddrPrefixes {
		if p == prefix {
			known = true
			break
		}
	}
	if !known {
		return false
	}

	values := make([]byte, 0, len(prefix)+1+len(payload))
	for i := 0; i < len(prefix); i++ {
		values = append(values, prefix[i]&0x1f)
	}
	values = append(values, 0)
	for i := 0; i < len(payload); i++ {
		idx := strings.IndexByte(cashAddrCharset, payload[i])
		if idx < 0 {
			return false
		}
		values = append(values, byte(idx))
	}
	// 8 checksum characters plus at least a version byte and a hash.
	if len(payload) < 42 {
		return false
	}
	return cashAddrPolymod(values) == 0
}

func cashAddrPolymod(values []byte) uint64 {
	c := uint64(1)
	for _, v := range values {
		c0 := byte(c >> 35)
		c = ((c & 0x07ffffffff) << 5) ^ uint64(v)
		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}
		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}
		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}
		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}
		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}
	return c ^ 1
}

func validLegacy(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 25 {
		return false
	}
	first := sha256.Sum256(raw[:21])
	second := sha256.Sum256(first[:])
	return bytes.Equal(second[:4], raw[21:])
}
