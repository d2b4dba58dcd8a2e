package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	x402 "github.com/castlens/x402client"
)

// Base64 regex pattern - requires at least one character
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

var authorizationFields = []string{"from", "to", "value", "validAfter", "validBefore", "nonce"}

// ValidateAndDecodePaymentHeader validates and decodes an X-PAYMENT header.
// It checks:
// - Base64 format
// - JSON structure
// - Required fields and their types
//
// Returns the decoded PaymentPayload if valid, or an error with a descriptive message.
func ValidateAndDecodePaymentHeader(paymentHeader string) (*x402.PaymentPayload, error) {
	if paymentHeader == "" {
		return nil, fmt.Errorf("payment header is empty")
	}

	if !base64Regex.MatchString(paymentHeader) {
		return nil, fmt.Errorf("invalid payment header format: not valid base64")
	}

	decoded, err := base64.StdEncoding.DecodeString(paymentHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid payment header format: base64 decoding failed - %v", err)
	}

	// Parse JSON into a map first for validation
	var rawPayload map[string]interface{}
	if err := json.Unmarshal(decoded, &rawPayload); err != nil {
		return nil, fmt.Errorf("invalid payment header format: not valid JSON - %v", err)
	}

	if _, exists := rawPayload["x402Version"]; !exists {
		return nil, fmt.Errorf("missing required field: x402Version")
	}
	if version, ok := rawPayload["x402Version"].(float64); !ok {
		return nil, fmt.Errorf("invalid field type: x402Version must be a number")
	} else if int(version) != x402.X402Version {
		return nil, fmt.Errorf("invalid value: unsupported x402Version %v", version)
	}

	for _, field := range []string{"scheme", "network", "resource"} {
		if err := requireString(rawPayload, field, field); err != nil {
			return nil, err
		}
	}

	if _, exists := rawPayload["payload"]; !exists {
		return nil, fmt.Errorf("missing required field: payload")
	}
	inner, ok := rawPayload["payload"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid field type: payload must be an object")
	}
	if err := requireString(inner, "signature", "payload.signature"); err != nil {
		return nil, err
	}

	if _, exists := inner["authorization"]; !exists {
		return nil, fmt.Errorf("missing required field: payload.authorization")
	}
	auth, ok := inner["authorization"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid field type: payload.authorization must be an object")
	}
	for _, field := range authorizationFields {
		if err := requireString(auth, field, "payload.authorization."+field); err != nil {
			return nil, err
		}
	}

	// If all validations pass, unmarshal into the PaymentPayload struct
	var payload x402.PaymentPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payment payload: %v", err)
	}

	return &payload, nil
}

func requireString(m map[string]interface{}, key, path string) error {
	v, exists := m[key]
	if !exists {
		return fmt.Errorf("missing required field: %s", path)
	}
	if _, ok := v.(string); !ok {
		return fmt.Errorf("invalid field type: %s must be a string", path)
	}
	return nil
}
