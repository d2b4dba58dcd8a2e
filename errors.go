package x402

import (
	"errors"
	"fmt"
)

// PaymentError is the error type returned by every client operation.
// Code identifies the failure class; Err, when set, is the underlying cause.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *PaymentError with the same code, so
// sentinels below work with errors.Is.
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail attaches a key/value pair and returns the error for chaining.
func (e *PaymentError) WithDetail(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error codes
const (
	ErrCodeTransport               = "transport_error"
	ErrCodePaymentRequiredNoWallet = "payment_required_no_wallet"
	ErrCodeSigningFailed           = "signing_failed"
	ErrCodeMalformedChallenge      = "malformed_challenge"
	ErrCodeMalformedResponse       = "malformed_response"
	ErrCodeJobFailed               = "job_failed"
	ErrCodePollingExhausted        = "polling_exhausted"
	ErrCodeUnsupportedNetwork      = "unsupported_network"
	ErrCodeUnexpectedStatus        = "unexpected_status"
	ErrCodeAPI                     = "api_error"
	ErrCodeInvalidTypedData        = "invalid_typed_data"
	ErrCodeNonceReuse              = "nonce_reuse"
)

// Sentinels for errors.Is checks.
var (
	ErrTransport               = &PaymentError{Code: ErrCodeTransport}
	ErrPaymentRequiredNoWallet = &PaymentError{Code: ErrCodePaymentRequiredNoWallet}
	ErrSigningFailed           = &PaymentError{Code: ErrCodeSigningFailed}
	ErrMalformedChallenge      = &PaymentError{Code: ErrCodeMalformedChallenge}
	ErrMalformedResponse       = &PaymentError{Code: ErrCodeMalformedResponse}
	ErrJobFailed               = &PaymentError{Code: ErrCodeJobFailed}
	ErrPollingExhausted        = &PaymentError{Code: ErrCodePollingExhausted}
	ErrUnsupportedNetwork      = &PaymentError{Code: ErrCodeUnsupportedNetwork}
	ErrUnexpectedStatus        = &PaymentError{Code: ErrCodeUnexpectedStatus}
	ErrAPI                     = &PaymentError{Code: ErrCodeAPI}
	ErrInvalidTypedData        = &PaymentError{Code: ErrCodeInvalidTypedData}
	ErrNonceReuse              = &PaymentError{Code: ErrCodeNonceReuse}
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode extracts the code from err if it is (or wraps) a *PaymentError.
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
