package evm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/castlens/x402client"
	x402evm "github.com/castlens/x402client/mechanisms/evm"
)

// testPrivateKey is the Foundry/Anvil first default account private key.
// This is a well-known test key - NEVER use in production.
const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func testRequirements() x402.PaymentRequirements {
	timeout := 60
	return x402.PaymentRequirements{
		Scheme:            x402evm.SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "1000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Resource:          "https://api.example.com/api/profiles/1",
		MaxTimeoutSeconds: &timeout,
	}
}

func TestNewWalletFromPrivateKey(t *testing.T) {
	w, err := NewWalletFromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, testAddress, w.Address())

	_, err = NewWalletFromPrivateKey("zz")
	assert.Error(t, err)
}

func TestCurrentAccount(t *testing.T) {
	w, err := NewWalletFromPrivateKey(testPrivateKey, WithChainID(84532))
	require.NoError(t, err)

	account, err := w.CurrentAccount(context.Background())
	require.NoError(t, err)
	assert.True(t, account.IsConnected)
	assert.False(t, account.IsDisconnected)
	assert.Equal(t, testAddress, account.Address)
	assert.Equal(t, uint64(84532), account.ChainID)
	assert.Equal(t, Connector, account.Connector)

	w.Disconnect()
	account, err = w.CurrentAccount(context.Background())
	require.NoError(t, err)
	assert.False(t, account.IsConnected)
	assert.True(t, account.IsDisconnected)
	assert.Empty(t, account.Address)

	_, err = x402.CheckPayer(context.Background(), w)
	assert.ErrorIs(t, err, x402.ErrPaymentRequiredNoWallet)

	w.Connect()
	payer, err := x402.CheckPayer(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, testAddress, payer)
}

func TestSignTypedData(t *testing.T) {
	w, err := NewWalletFromPrivateKey(testPrivateKey)
	require.NoError(t, err)

	builder := x402evm.NewAuthorizationBuilder(x402evm.WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	prepared, err := builder.Prepare(testRequirements(), w.Address())
	require.NoError(t, err)

	t.Run("signature verifies against the payload", func(t *testing.T) {
		sig, err := w.SignTypedData(context.Background(), prepared.TypedData)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sig, "0x"))
		assert.Len(t, sig, 132)

		assert.NoError(t, x402evm.VerifyPayload(prepared.Payload(sig), testRequirements()))
	})

	t.Run("refuses a document for another payer", func(t *testing.T) {
		other, err := builder.Prepare(testRequirements(), "0x209693Bc6afc0C5328bA36FaF03C514EF312287C")
		require.NoError(t, err)
		_, err = w.SignTypedData(context.Background(), other.TypedData)
		assert.Error(t, err)
	})

	t.Run("chain pinned wallet refuses other chains", func(t *testing.T) {
		pinned, err := NewWalletFromPrivateKey(testPrivateKey, WithChainID(8453))
		require.NoError(t, err)
		_, err = pinned.SignTypedData(context.Background(), prepared.TypedData)
		assert.Error(t, err)
	})

	t.Run("disconnected wallet refuses", func(t *testing.T) {
		w.Disconnect()
		defer w.Connect()
		_, err := w.SignTypedData(context.Background(), prepared.TypedData)
		assert.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := w.SignTypedData(ctx, prepared.TypedData)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("garbage document", func(t *testing.T) {
		_, err := w.SignTypedData(context.Background(), `{"primaryType":"Mail"}`)
		assert.Error(t, err)
	})
}
