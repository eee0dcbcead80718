// Package hexutil provides utilities for parsing Ethereum hex-encoded values.
//
// This package is intentionally placed in internal/pkg to allow imports from
// both adapters and services without introducing dependency cycles.
package hexutil

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ParseInt64 parses a hex-encoded string to int64.
// Handles both "0x" prefixed and non-prefixed hex strings.
func ParseInt64(hexNum string) (int64, error) {
	hexNum = strings.TrimPrefix(hexNum, "0x")
	return strconv.ParseInt(hexNum, 16, 64)
}

// ParseUint64 parses a hex-encoded string to uint64.
// Handles both "0x" prefixed and non-prefixed hex strings.
func ParseUint64(hexNum string) (uint64, error) {
	hexNum = strings.TrimPrefix(hexNum, "0x")
	return strconv.ParseUint(hexNum, 16, 64)
}

// ParseBig parses a hex-encoded quantity into a big.Int.
// An empty or "0x" string parses to zero.
func ParseBig(hexNum string) (*big.Int, error) {
	s := strings.TrimPrefix(hexNum, "0x")
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", hexNum)
	}
	return n, nil
}

// EncodeBig renders a big.Int as a minimal 0x-prefixed hex quantity.
// nil and zero both encode to "0x0".
func EncodeBig(n *big.Int) string {
	if n == nil || n.Sign() == 0 {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

// EncodeUint64 renders a uint64 as a minimal 0x-prefixed hex quantity.
func EncodeUint64(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}
