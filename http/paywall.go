package http

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	"github.com/castlens/x402client/mechanisms/evm"
)

// ErrPaymentHeaderRequired is returned by Paywall.Verify when the request
// carries no X-PAYMENT header.
var ErrPaymentHeaderRequired = errors.New("X-PAYMENT header is required")

// PaywallConfig describes the price of a resource.
type PaywallConfig struct {
	// Amount is in token units, e.g. "0.01" for one cent of USDC.
	Amount            string
	PayTo             string
	Network           string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	Nonces            *x402.NonceRegistry
	Now               func() time.Time
	Logger            *zap.Logger
}

// Paywall issues 402 challenges and verifies signed exact-scheme payments
// offline: terms, validity window, signer and nonce replay. It does not
// settle on chain.
type Paywall struct {
	requirements x402.PaymentRequirements
	nonces       *x402.NonceRegistry
	now          func() time.Time
	logger       *zap.Logger
}

// NewPaywall validates cfg and builds a paywall. Network defaults to
// base-sepolia and the timeout to DefaultMaxTimeoutSeconds.
func NewPaywall(cfg PaywallConfig) (*Paywall, error) {
	if cfg.Network == "" {
		cfg.Network = "base-sepolia"
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = x402.DefaultMaxTimeoutSeconds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Nonces == nil {
		cfg.Nonces = x402.NewNonceRegistry(x402.WithRegistryClock(cfg.Now))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if !common.IsHexAddress(cfg.PayTo) {
		return nil, fmt.Errorf("invalid pay-to address: %q", cfg.PayTo)
	}

	netCfg, err := evm.GetNetworkConfig(x402.Network(cfg.Network))
	if err != nil {
		return nil, err
	}
	amount, err := evm.ParseAmount(cfg.Amount, netCfg.DefaultAsset.Decimals)
	if err != nil {
		return nil, err
	}

	timeout := cfg.MaxTimeoutSeconds
	return &Paywall{
		requirements: x402.PaymentRequirements{
			Scheme:            evm.SchemeExact,
			Network:           x402.Network(cfg.Network),
			MaxAmountRequired: amount.String(),
			Asset:             netCfg.DefaultAsset.Address,
			PayTo:             cfg.PayTo,
			Description:       cfg.Description,
			MimeType:          cfg.MimeType,
			MaxTimeoutSeconds: &timeout,
			Extra: map[string]interface{}{
				"name":    netCfg.DefaultAsset.Name,
				"version": netCfg.DefaultAsset.Version,
			},
		},
		nonces: cfg.Nonces,
		now:    cfg.Now,
		logger: cfg.Logger,
	}, nil
}

// Requirements returns the accepted payment bound to resource.
func (p *Paywall) Requirements(resource string) x402.PaymentRequirements {
	r := p.requirements.WithResource(resource)
	timeout := *r.MaxTimeoutSeconds
	r.MaxTimeoutSeconds = &timeout
	extra := make(map[string]interface{}, len(r.Extra))
	for k, v := range r.Extra {
		extra[k] = v
	}
	r.Extra = extra
	return r
}

// Challenge builds the 402 body for resource.
func (p *Paywall) Challenge(resource, reason string) x402.PaymentRequired {
	return x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       reason,
		Accepts:     []x402.PaymentRequirements{p.Requirements(resource)},
	}
}

// Verify checks an X-PAYMENT header for resource and returns the normalized
// payer address. On success the authorization nonce is consumed.
func (p *Paywall) Verify(header, resource string) (string, error) {
	if header == "" {
		return "", ErrPaymentHeaderRequired
	}

	payload, err := ValidateAndDecodePaymentHeader(header)
	if err != nil {
		p.logger.Debug("rejected malformed payment header", zap.Error(err))
		return "", err
	}

	requirements := p.Requirements(resource)
	if err := VerifyPayment(*payload, requirements, p.now()); err != nil {
		p.logger.Info("invalid payment", zap.String("resource", resource), zap.Error(err))
		return "", err
	}

	auth := payload.Payload.Authorization
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	if !p.nonces.Reserve(strings.ToLower(auth.Nonce), time.Unix(validBefore.Int64(), 0)) {
		p.logger.Info("replayed payment nonce", zap.String("nonce", auth.Nonce))
		return "", errors.New("authorization nonce already used")
	}

	p.logger.Debug("payment verified", zap.String("payer", auth.From), zap.String("resource", resource))
	return evm.NormalizeAddress(auth.From), nil
}

// VerifyPayment checks payload against requirements without touching the
// chain: terms, validity window and signer.
func VerifyPayment(payload x402.PaymentPayload, requirements x402.PaymentRequirements, now time.Time) error {
	if payload.Scheme != requirements.Scheme {
		return fmt.Errorf("unsupported scheme: %s", payload.Scheme)
	}
	if payload.Network != requirements.Network {
		return fmt.Errorf("network mismatch: %s", payload.Network)
	}
	if payload.Resource != requirements.Resource {
		return fmt.Errorf("resource mismatch: %s", payload.Resource)
	}

	auth := payload.Payload.Authorization
	if evm.NormalizeAddress(auth.To) != evm.NormalizeAddress(requirements.PayTo) {
		return fmt.Errorf("recipient mismatch: %s", auth.To)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return fmt.Errorf("invalid value: %s", auth.Value)
	}
	required, _ := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if value.Cmp(required) < 0 {
		return fmt.Errorf("insufficient value: %s < %s", auth.Value, requirements.MaxAmountRequired)
	}

	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok || !validBefore.IsInt64() {
		return fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}
	ts := big.NewInt(now.Unix())
	if ts.Cmp(validAfter) < 0 {
		return fmt.Errorf("authorization not yet valid")
	}
	if ts.Cmp(validBefore) >= 0 {
		return fmt.Errorf("authorization expired")
	}

	return evm.VerifyPayload(payload, requirements)
}
