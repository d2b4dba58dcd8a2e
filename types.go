package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// X402Version is the protocol version this client speaks on the wire.
const X402Version = 1

// PaymentHeader carries the base64 encoded PaymentPayload on a paid retry.
const PaymentHeader = "X-PAYMENT"

// Network is a legacy x402 v1 network name such as "base-sepolia".
type Network string

func (n Network) String() string {
	return string(n)
}

// PaymentRequirements describes one acceptable way to pay for a resource,
// as listed in the accepts array of a 402 challenge.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Asset             string                 `json:"asset"`
	PayTo             string                 `json:"payTo"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	MimeType          string                 `json:"mimeType,omitempty"`
	MaxTimeoutSeconds *int                   `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// ExtraString returns a string value from Extra, or "" if absent or not a string.
func (r PaymentRequirements) ExtraString(key string) string {
	if r.Extra == nil {
		return ""
	}
	if s, ok := r.Extra[key].(string); ok {
		return s
	}
	return ""
}

// PaymentRequired is the body of a 402 response.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// Authorization holds the EIP-3009 TransferWithAuthorization fields.
// Numeric fields are decimal strings on the wire.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload is the scheme specific part of a PaymentPayload.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the signed payment envelope sent in the X-PAYMENT header.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     Network      `json:"network"`
	Resource    string       `json:"resource"`
	Payload     ExactPayload `json:"payload"`
}

// EncodePaymentHeader serializes the payload to JSON and base64 encodes it.
func EncodePaymentHeader(p PaymentPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader reverses EncodePaymentHeader.
func DecodePaymentHeader(header string) (PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment payload JSON: %w", err)
	}
	return payload, nil
}

// ParsePaymentRequired decodes a 402 response body.
func ParsePaymentRequired(body []byte) (PaymentRequired, error) {
	var required PaymentRequired
	if err := json.Unmarshal(body, &required); err != nil {
		return PaymentRequired{}, NewPaymentError(ErrCodeMalformedChallenge, "failed to parse payment requirements", err)
	}
	if len(required.Accepts) == 0 {
		return PaymentRequired{}, NewPaymentError(ErrCodeMalformedChallenge, "no payment requirements found", nil)
	}
	return required, nil
}
