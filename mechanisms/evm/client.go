package evm

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	x402 "github.com/castlens/x402client"
)

// maxNonceAttempts bounds regeneration when a fresh nonce collides with a
// live one in the registry.
const maxNonceAttempts = 3

// AuthorizationBuilder turns payment requirements into a signable
// TransferWithAuthorization document and, once signed, into the wire payload.
type AuthorizationBuilder struct {
	nonces   *x402.NonceRegistry
	now      func() time.Time
	newNonce func() (string, error)
}

// BuilderOption configures an AuthorizationBuilder
type BuilderOption func(*AuthorizationBuilder)

// WithNonceRegistry shares a registry between builders.
func WithNonceRegistry(registry *x402.NonceRegistry) BuilderOption {
	return func(b *AuthorizationBuilder) {
		b.nonces = registry
	}
}

// WithClock overrides the time source used for the validity window.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *AuthorizationBuilder) {
		b.now = now
	}
}

// WithNonceSource overrides nonce generation.
func WithNonceSource(source func() (string, error)) BuilderOption {
	return func(b *AuthorizationBuilder) {
		b.newNonce = source
	}
}

// NewAuthorizationBuilder creates a builder. Without WithNonceRegistry it
// gets its own registry on the builder's clock.
func NewAuthorizationBuilder(opts ...BuilderOption) *AuthorizationBuilder {
	b := &AuthorizationBuilder{
		now:      time.Now,
		newNonce: CreateNonce,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.nonces == nil {
		b.nonces = x402.NewNonceRegistry(x402.WithRegistryClock(b.now))
	}
	return b
}

// PreparedAuthorization is everything needed to request a signature and
// assemble the payment payload afterwards.
type PreparedAuthorization struct {
	Requirements  x402.PaymentRequirements
	ChainID       *big.Int
	TypedData     string
	Authorization x402.Authorization
}

// Prepare validates the requirements, reserves a fresh nonce, fixes the
// validity window and builds the typed-data document for payer.
// requirements.Resource must already point at the concrete request URL.
func (b *AuthorizationBuilder) Prepare(requirements x402.PaymentRequirements, payer string) (*PreparedAuthorization, error) {
	if err := x402.ValidatePaymentRequirements(requirements); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeMalformedChallenge, "invalid payment requirements", err)
	}

	chainID, err := GetEvmChainID(requirements.Network)
	if err != nil {
		return nil, err
	}

	validAfter, validBefore := CreateValidityWindow(b.now(), time.Duration(requirements.TimeoutSeconds())*time.Second)

	nonce, err := b.reserveNonce(time.Unix(validBefore, 0))
	if err != nil {
		return nil, err
	}

	typedData, err := BuildTypedData(requirements, payer, nonce, validAfter)
	if err != nil {
		b.nonces.Release(nonce)
		return nil, err
	}

	return &PreparedAuthorization{
		Requirements: requirements,
		ChainID:      chainID,
		TypedData:    typedData,
		Authorization: x402.Authorization{
			From:        NormalizeAddress(payer),
			To:          NormalizeAddress(requirements.PayTo),
			Value:       requirements.MaxAmountRequired,
			ValidAfter:  strconv.FormatInt(validAfter, 10),
			ValidBefore: strconv.FormatInt(validBefore, 10),
			Nonce:       nonce,
		},
	}, nil
}

// Release returns the nonce of an authorization that was never sent.
func (b *AuthorizationBuilder) Release(p *PreparedAuthorization) {
	if p != nil {
		b.nonces.Release(p.Authorization.Nonce)
	}
}

func (b *AuthorizationBuilder) reserveNonce(expiresAt time.Time) (string, error) {
	for i := 0; i < maxNonceAttempts; i++ {
		nonce, err := b.newNonce()
		if err != nil {
			return "", err
		}
		if b.nonces.Reserve(nonce, expiresAt) {
			return nonce, nil
		}
	}
	return "", x402.NewPaymentError(x402.ErrCodeNonceReuse,
		fmt.Sprintf("could not obtain an unused nonce after %d attempts", maxNonceAttempts), nil)
}

// Payload assembles the wire payload around a signature.
func (p *PreparedAuthorization) Payload(signature string) x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      p.Requirements.Scheme,
		Network:     p.Requirements.Network,
		Resource:    p.Requirements.Resource,
		Payload: x402.ExactPayload{
			Signature:     signature,
			Authorization: p.Authorization,
		},
	}
}

// VerifyPayload checks that payload's signature was produced by
// authorization.from over the TransferWithAuthorization it carries, using
// the domain derived from requirements.
func VerifyPayload(payload x402.PaymentPayload, requirements x402.PaymentRequirements) error {
	auth := payload.Payload.Authorization

	chainID, err := GetEvmChainID(payload.Network)
	if err != nil {
		return err
	}

	validAfter, err := parseUint256(auth.ValidAfter)
	if err != nil {
		return fmt.Errorf("invalid validAfter: %w", err)
	}
	validBefore, err := parseUint256(auth.ValidBefore)
	if err != nil {
		return fmt.Errorf("invalid validBefore: %w", err)
	}

	name := requirements.ExtraString("name")
	if name == "" {
		name = DefaultDomainName
	}
	version := requirements.ExtraString("version")
	if version == "" {
		version = DefaultDomainVersion
	}

	doc := &TypedDataDocument{
		Types:       GetEIP3009Types(),
		PrimaryType: TypeTransferWithAuthorization,
		Domain: TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainID:           Uint256{chainID},
			VerifyingContract: NormalizeAddress(requirements.Asset),
		},
		Message: TransferWithAuthorization{
			From:        auth.From,
			To:          auth.To,
			Value:       auth.Value,
			ValidAfter:  validAfter,
			ValidBefore: validBefore,
			Nonce:       auth.Nonce,
		},
	}

	digest, err := HashTypedDataDocument(doc)
	if err != nil {
		return err
	}
	signer, err := RecoverSigner(digest, payload.Payload.Signature)
	if err != nil {
		return err
	}
	if NormalizeAddress(signer.Hex()) != NormalizeAddress(auth.From) {
		return fmt.Errorf("signature does not match payer %s", auth.From)
	}
	return nil
}

func parseUint256(s string) (Uint256, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return Uint256{}, fmt.Errorf("not a uint256: %q", s)
	}
	return Uint256{v}, nil
}
