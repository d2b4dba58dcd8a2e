package evm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/castlens/x402client"
)

// typedDataSchema describes the only document shape the client ever signs.
const typedDataSchema = `{
  "type": "object",
  "required": ["types", "primaryType", "domain", "message"],
  "properties": {
    "types": {
      "type": "object",
      "required": ["EIP712Domain", "TransferWithAuthorization"]
    },
    "primaryType": {"const": "TransferWithAuthorization"},
    "domain": {
      "type": "object",
      "required": ["name", "version", "chainId", "verifyingContract"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "version": {"type": "string", "minLength": 1},
        "chainId": {"type": ["integer", "string"]},
        "verifyingContract": {"$ref": "#/definitions/address"}
      }
    },
    "message": {
      "type": "object",
      "required": ["from", "to", "value", "validAfter", "validBefore", "nonce"],
      "properties": {
        "from": {"$ref": "#/definitions/address"},
        "to": {"$ref": "#/definitions/address"},
        "value": {"type": "string", "pattern": "^[0-9]+$"},
        "validAfter": {"type": ["integer", "string"]},
        "validBefore": {"type": ["integer", "string"]},
        "nonce": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"}
      }
    }
  },
  "definitions": {
    "address": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"}
  }
}`

// BuildTypedData constructs the TransferWithAuthorization document for the
// given requirements and returns it serialized. The document is validated
// before it is returned.
func BuildTypedData(requirements x402.PaymentRequirements, payer, nonce string, validAfter int64) (string, error) {
	cfg, err := GetNetworkConfig(requirements.Network)
	if err != nil {
		return "", err
	}

	name := requirements.ExtraString("name")
	if name == "" {
		name = DefaultDomainName
	}
	version := requirements.ExtraString("version")
	if version == "" {
		version = DefaultDomainVersion
	}

	doc := TypedDataDocument{
		Types:       GetEIP3009Types(),
		PrimaryType: TypeTransferWithAuthorization,
		Domain: TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainID:           Uint256{cfg.ChainID},
			VerifyingContract: NormalizeAddress(requirements.Asset),
		},
		Message: TransferWithAuthorization{
			From:        NormalizeAddress(payer),
			To:          NormalizeAddress(requirements.PayTo),
			Value:       requirements.MaxAmountRequired,
			ValidAfter:  NewUint256(validAfter),
			ValidBefore: NewUint256(validAfter + int64(requirements.TimeoutSeconds())),
			Nonce:       nonce,
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeInvalidTypedData, "failed to serialize typed data", err)
	}

	typedData := string(data)
	if err := ValidateTypedData(typedData); err != nil {
		return "", err
	}
	return typedData, nil
}

// ValidateTypedData re-parses a serialized document and checks that every
// required field is present with the expected JSON type.
func ValidateTypedData(typedData string) error {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(typedData), &parsed); err != nil {
		return x402.NewPaymentError(x402.ErrCodeInvalidTypedData, "serialized typed data is not valid JSON", err)
	}

	domain, _ := parsed["domain"].(map[string]interface{})
	if !isString(domain, "name") || !isString(domain, "version") ||
		!isNumberOrString(domain, "chainId") || !isString(domain, "verifyingContract") {
		return x402.NewPaymentError(x402.ErrCodeInvalidTypedData, "Invalid domain structure in typed data", nil)
	}

	message, _ := parsed["message"].(map[string]interface{})
	if !isString(message, "from") || !isString(message, "to") || !isString(message, "value") ||
		!isNumberOrString(message, "validAfter") || !isNumberOrString(message, "validBefore") ||
		!isString(message, "nonce") {
		return x402.NewPaymentError(x402.ErrCodeInvalidTypedData, "Invalid message structure in typed data", nil)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(typedDataSchema),
		gojsonschema.NewStringLoader(typedData),
	)
	if err != nil {
		return x402.NewPaymentError(x402.ErrCodeInvalidTypedData, "schema validation failed", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return x402.NewPaymentError(x402.ErrCodeInvalidTypedData, strings.Join(problems, "; "), nil)
	}
	return nil
}

func isString(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key].(string)
	return ok
}

func isNumberOrString(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	switch m[key].(type) {
	case string, float64:
		return true
	}
	return false
}
