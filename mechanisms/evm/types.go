package evm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// AssetInfo contains information about a token asset
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig contains network-specific configuration
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Uint256 is an unsigned integer that marshals as a bare JSON number and
// unmarshals from a number, a decimal string or a 0x hex string.
type Uint256 struct {
	*big.Int
}

// NewUint256 wraps a non-negative int64.
func NewUint256(v int64) Uint256 {
	return Uint256{big.NewInt(v)}
}

// MarshalJSON implements json.Marshaler.
func (u Uint256) MarshalJSON() ([]byte, error) {
	if u.Int == nil {
		return []byte("0"), nil
	}
	return []byte(u.Int.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Uint256) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "null" {
		return fmt.Errorf("uint256 value is null")
	}
	s = strings.Trim(s, `"`)

	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("invalid uint256 value: %s", s)
	}
	u.Int = v
	return nil
}

// TypedDataDomain represents the EIP-712 domain
type TypedDataDomain struct {
	Name              string  `json:"name"`
	Version           string  `json:"version"`
	ChainID           Uint256 `json:"chainId"`
	VerifyingContract string  `json:"verifyingContract"`
}

// TransferWithAuthorization is the EIP-3009 message signed by the payer.
// Value stays a decimal string; the timestamps travel as JSON numbers.
type TransferWithAuthorization struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	ValidAfter  Uint256 `json:"validAfter"`
	ValidBefore Uint256 `json:"validBefore"`
	Nonce       string  `json:"nonce"`
}

// TypedDataDocument is the JSON document handed to the wallet for signing.
type TypedDataDocument struct {
	Types       map[string][]TypedDataField `json:"types"`
	PrimaryType string                      `json:"primaryType"`
	Domain      TypedDataDomain             `json:"domain"`
	Message     TransferWithAuthorization   `json:"message"`
}

// ParseTypedDataDocument decodes a document produced by BuildTypedData.
func ParseTypedDataDocument(typedData string) (*TypedDataDocument, error) {
	var doc TypedDataDocument
	if err := json.Unmarshal([]byte(typedData), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse typed data: %w", err)
	}
	if doc.PrimaryType != TypeTransferWithAuthorization {
		return nil, fmt.Errorf("unsupported primary type: %q", doc.PrimaryType)
	}
	if doc.Domain.ChainID.Int == nil {
		return nil, fmt.Errorf("typed data domain has no chainId")
	}
	return &doc, nil
}

// GetEIP3009Types returns the fixed EIP-712 type set for TransferWithAuthorization.
func GetEIP3009Types() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		TypeEIP712Domain: {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		TypeTransferWithAuthorization: {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}
}
