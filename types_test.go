package x402

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequirements() PaymentRequirements {
	return PaymentRequirements{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "1000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Resource:          "https://api.example.com/api/profiles/1",
		Extra:             map[string]interface{}{"name": "USDC", "version": 2},
	}
}

func TestPaymentHeaderRoundTrip(t *testing.T) {
	payload := PaymentPayload{
		X402Version: X402Version,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Resource:    "https://api.example.com/api/profiles/1",
		Payload: ExactPayload{
			Signature: "0xabc",
			Authorization: Authorization{
				From:        "0x1",
				To:          "0x2",
				Value:       "1000",
				ValidAfter:  "1",
				ValidBefore: "2",
				Nonce:       "0x3",
			},
		},
	}

	header, err := EncodePaymentHeader(payload)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"x402Version":1`)

	decoded, err := DecodePaymentHeader(header)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	_, err = DecodePaymentHeader("!!!")
	assert.Error(t, err)
	_, err = DecodePaymentHeader(base64.StdEncoding.EncodeToString([]byte("nope")))
	assert.Error(t, err)
}

func TestParsePaymentRequired(t *testing.T) {
	required, err := ParsePaymentRequired([]byte(`{
		"x402Version": 1,
		"error": "X-PAYMENT header is required",
		"accepts": [{"scheme":"exact","network":"base-sepolia","maxAmountRequired":"1000","asset":"0xa","payTo":"0xb","resource":"","description":"","maxTimeoutSeconds":30}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, required.X402Version)
	require.Len(t, required.Accepts, 1)
	assert.Equal(t, 30, required.Accepts[0].TimeoutSeconds())

	selected, err := SelectPaymentRequirements(required)
	require.NoError(t, err)
	assert.Equal(t, Network("base-sepolia"), selected.Network)

	_, err = ParsePaymentRequired([]byte(`{"x402Version":1,"accepts":[]}`))
	assert.ErrorIs(t, err, ErrMalformedChallenge)

	_, err = ParsePaymentRequired([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedChallenge)

	_, err = SelectPaymentRequirements(PaymentRequired{})
	assert.ErrorIs(t, err, ErrMalformedChallenge)
}

func TestValidatePaymentRequirements(t *testing.T) {
	assert.NoError(t, ValidatePaymentRequirements(testRequirements()))

	zero := 0
	tests := []struct {
		name   string
		mutate func(*PaymentRequirements)
	}{
		{"no scheme", func(r *PaymentRequirements) { r.Scheme = "" }},
		{"no network", func(r *PaymentRequirements) { r.Network = "" }},
		{"no asset", func(r *PaymentRequirements) { r.Asset = "" }},
		{"no recipient", func(r *PaymentRequirements) { r.PayTo = "" }},
		{"no amount", func(r *PaymentRequirements) { r.MaxAmountRequired = "" }},
		{"decimal amount", func(r *PaymentRequirements) { r.MaxAmountRequired = "1.5" }},
		{"negative amount", func(r *PaymentRequirements) { r.MaxAmountRequired = "-1" }},
		{"zero timeout", func(r *PaymentRequirements) { r.MaxTimeoutSeconds = &zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRequirements()
			tt.mutate(&r)
			assert.Error(t, ValidatePaymentRequirements(r))
		})
	}
}

func TestPaymentRequirementsHelpers(t *testing.T) {
	r := testRequirements()
	assert.Equal(t, DefaultMaxTimeoutSeconds, r.TimeoutSeconds())
	assert.Equal(t, "USDC", r.ExtraString("name"))
	assert.Equal(t, "", r.ExtraString("version"))
	assert.Equal(t, "", r.ExtraString("missing"))
	assert.Equal(t, "", PaymentRequirements{}.ExtraString("name"))

	bound := r.WithResource("https://other.example.com/x")
	assert.Equal(t, "https://other.example.com/x", bound.Resource)
	assert.Equal(t, "https://api.example.com/api/profiles/1", r.Resource)
}

type stubWallet struct {
	account *WalletAccount
	err     error
}

func (w stubWallet) CurrentAccount(context.Context) (*WalletAccount, error) {
	return w.account, w.err
}

func (w stubWallet) SignTypedData(context.Context, string) (string, error) {
	return "", errors.New("not implemented")
}

func TestCheckPayer(t *testing.T) {
	ctx := context.Background()

	payer, err := CheckPayer(ctx, stubWallet{account: &WalletAccount{IsConnected: true, Address: "0xabc"}})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", payer)

	tests := []struct {
		name    string
		wallet  Wallet
		message string
	}{
		{"nil wallet", nil, "No wallet connected"},
		{"account error", stubWallet{err: errors.New("locked")}, "failed to read wallet account"},
		{"nil account", stubWallet{}, "Wallet not connected"},
		{"disconnected", stubWallet{account: &WalletAccount{IsDisconnected: true}}, "Wallet not connected"},
		{"no address", stubWallet{account: &WalletAccount{IsConnected: true}}, "No wallet address available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckPayer(ctx, tt.wallet)
			assert.ErrorIs(t, err, ErrPaymentRequiredNoWallet)
			assert.ErrorContains(t, err, tt.message)
		})
	}
}
