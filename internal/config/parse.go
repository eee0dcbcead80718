package config

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

func parseAddress(key, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, value)
	}
	return common.HexToAddress(value), nil
}

// parseStringList splits a comma-separated value, dropping empty entries.
func parseStringList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAddressList(key, csv string) ([]common.Address, error) {
	parts := parseStringList(csv)
	out := make([]common.Address, 0, len(parts))
	for _, part := range parts {
		addr, err := parseAddress(key, part)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// parsePriceOverrides parses PRICE_USD_OVERRIDES entries of the form
// "token:price,token:price".
func parsePriceOverrides(csv string) (map[common.Address]float64, error) {
	out := make(map[common.Address]float64)
	for _, part := range parseStringList(csv) {
		tok, priceStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("PRICE_USD_OVERRIDES: malformed entry %q, want token:price", part)
		}
		addr, err := parseAddress("PRICE_USD_OVERRIDES", tok)
		if err != nil {
			return nil, err
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("PRICE_USD_OVERRIDES: invalid price %q for %s", priceStr, tok)
		}
		out[addr] = price
	}
	return out, nil
}

// parseReserveOverrides parses RESERVE_PARAM_OVERRIDES entries of the form
// "token:bonusBps:closeFactorBps,...".
func parseReserveOverrides(csv string) (map[common.Address]ReserveOverride, error) {
	out := make(map[common.Address]ReserveOverride)
	for _, part := range parseStringList(csv) {
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("RESERVE_PARAM_OVERRIDES: malformed entry %q, want token:bonus:close", part)
		}
		addr, err := parseAddress("RESERVE_PARAM_OVERRIDES", fields[0])
		if err != nil {
			return nil, err
		}
		bonus, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("RESERVE_PARAM_OVERRIDES: invalid bonus %q for %s", fields[1], fields[0])
		}
		closeFactor, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("RESERVE_PARAM_OVERRIDES: invalid close factor %q for %s", fields[2], fields[0])
		}
		out[addr] = ReserveOverride{BonusBps: bonus, CloseFactorBps: closeFactor}
	}
	return out, nil
}

// parseSelector decodes an optional 4-byte function selector override given
// as 8 hex characters with or without the 0x prefix.
func parseSelector(key, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid selector %q: %w", key, value, err)
	}
	if len(raw) != 4 {
		return nil, fmt.Errorf("%s: selector must be 4 bytes, got %d", key, len(raw))
	}
	return raw, nil
}

// ParseAuthHeader splits a "Name: Value" header spec into its parts. Returns
// empty strings when the spec is empty or malformed.
func ParseAuthHeader(spec string) (name, value string) {
	name, value, ok := strings.Cut(spec, ":")
	if !ok {
		return "", ""
	}
	return strings.TrimSpace(name), strings.TrimSpace(value)
}
