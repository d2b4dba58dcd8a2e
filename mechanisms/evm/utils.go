package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizeAddress trims, lowercases and 0x-prefixes an address. It does not
// check length or hex validity. NormalizeAddress(NormalizeAddress(a)) == NormalizeAddress(a).
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		addr = addr[2:]
	}
	return "0x" + strings.ToLower(addr)
}

// CreateNonce returns 32 random bytes as a 0x-prefixed hex string.
func CreateNonce() (string, error) {
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return BytesToHex(nonce), nil
}

// CreateValidityWindow returns validAfter = now and validBefore = now + timeout.
func CreateValidityWindow(now time.Time, timeout time.Duration) (validAfter, validBefore int64) {
	validAfter = now.Unix()
	validBefore = validAfter + int64(timeout/time.Second)
	return validAfter, validBefore
}

// BytesToHex encodes b as 0x-prefixed lowercase hex.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToBytes decodes a hex string with or without 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// FormatAmount renders an atomic amount in token units, e.g. "1000" with 6
// decimals becomes "0.001".
func FormatAmount(atomic string, decimals int) (string, error) {
	v, ok := new(big.Int).SetString(atomic, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount: %s", atomic)
	}
	return decimal.NewFromBigInt(v, int32(-decimals)).String(), nil
}

// ParseAmount converts a token-unit amount such as "0.25" into atomic units.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}
