package x402

import (
	"fmt"
	"math/big"
)

// DefaultMaxTimeoutSeconds is the validity window used when a requirement
// does not specify one.
const DefaultMaxTimeoutSeconds = 60

// ValidatePaymentRequirements performs basic validation on payment requirements
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	if r.MaxAmountRequired == "" {
		return fmt.Errorf("payment amount is required")
	}
	if v, ok := new(big.Int).SetString(r.MaxAmountRequired, 10); !ok || v.Sign() < 0 {
		return fmt.Errorf("invalid payment amount: %s", r.MaxAmountRequired)
	}
	if r.MaxTimeoutSeconds != nil && *r.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid max timeout: %d", *r.MaxTimeoutSeconds)
	}
	return nil
}

// TimeoutSeconds returns MaxTimeoutSeconds or the default.
func (r PaymentRequirements) TimeoutSeconds() int {
	if r.MaxTimeoutSeconds == nil {
		return DefaultMaxTimeoutSeconds
	}
	return *r.MaxTimeoutSeconds
}

// WithResource returns a copy of the requirements bound to resource.
func (r PaymentRequirements) WithResource(resource string) PaymentRequirements {
	r.Resource = resource
	return r
}

// SelectPaymentRequirements picks the first accepted requirement.
func SelectPaymentRequirements(required PaymentRequired) (PaymentRequirements, error) {
	if len(required.Accepts) == 0 {
		return PaymentRequirements{}, NewPaymentError(ErrCodeMalformedChallenge, "no payment requirements found", nil)
	}
	return required.Accepts[0], nil
}
