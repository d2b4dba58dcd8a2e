package evm

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/castlens/x402client"
)

// testPrivateKey is the Foundry/Anvil first default account private key.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testPayer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func intPtr(v int) *int { return &v }

func testRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "1000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0xABcdEF0123456789aBCdef0123456789AbCdEf01",
		Resource:          "https://api.example.com/api/x",
		Description:       "test resource",
		MaxTimeoutSeconds: intPtr(60),
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"0xABCD1234":   "0xabcd1234",
		"ABCD1234":     "0xabcd1234",
		"0X1234":       "0x1234",
		"  0xAbC  ":    "0xabc",
		testPayer:      strings.ToLower(testPayer),
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			got := NormalizeAddress(in)
			assert.Equal(t, want, got)
			assert.Equal(t, got, NormalizeAddress(got), "normalization must be idempotent")
		})
	}
}

func TestGetEvmChainID(t *testing.T) {
	cases := map[x402.Network]int64{
		"base-sepolia":     84532,
		"base-mainnet":     8453,
		"base":             8453,
		"ethereum-mainnet": 1,
		"ethereum":         1,
		"ethereum-sepolia": 11155111,
		"sepolia":          11155111,
	}
	for network, want := range cases {
		chainID, err := GetEvmChainID(network)
		require.NoError(t, err, network)
		assert.Equal(t, want, chainID.Int64(), network)
	}

	t.Run("unknown network is an error", func(t *testing.T) {
		for _, network := range []x402.Network{"polygon", "", "Base-Sepolia", "eip155:8453"} {
			_, err := GetEvmChainID(network)
			require.Error(t, err)
			assert.True(t, errors.Is(err, x402.ErrUnsupportedNetwork))
		}
		_, err := GetEvmChainID("polygon")
		assert.Contains(t, err.Error(), "Unsupported network: polygon")
	})

	t.Run("returned chain id is a copy", func(t *testing.T) {
		chainID, _ := GetEvmChainID("base")
		chainID.SetInt64(1)
		again, _ := GetEvmChainID("base")
		assert.Equal(t, int64(8453), again.Int64())
	})
}

func TestNetworkForChainID(t *testing.T) {
	network, ok := NetworkForChainID(84532)
	assert.True(t, ok)
	assert.Equal(t, x402.Network("base-sepolia"), network)

	_, ok = NetworkForChainID(137)
	assert.False(t, ok)
	assert.Len(t, SupportedNetworks(), 7)
}

func TestCreateNonce(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		nonce, err := CreateNonce()
		require.NoError(t, err)
		assert.Len(t, nonce, 66)
		assert.True(t, strings.HasPrefix(nonce, "0x"))
		assert.False(t, seen[nonce], "duplicate nonce %s", nonce)
		seen[nonce] = true
	}
}

func TestCreateValidityWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	after, before := CreateValidityWindow(now, 60*time.Second)
	assert.Equal(t, int64(1700000000), after)
	assert.Equal(t, int64(60), before-after)
}

func TestFormatAndParseAmount(t *testing.T) {
	s, err := FormatAmount("1000", 6)
	require.NoError(t, err)
	assert.Equal(t, "0.001", s)

	s, err = FormatAmount("2500000", 6)
	require.NoError(t, err)
	assert.Equal(t, "2.5", s)

	_, err = FormatAmount("abc", 6)
	assert.Error(t, err)

	v, err := ParseAmount("0.25", 6)
	require.NoError(t, err)
	assert.Equal(t, "250000", v.String())

	_, err = ParseAmount("0.0000001", 6)
	assert.Error(t, err)
	_, err = ParseAmount("-1", 6)
	assert.Error(t, err)
}

func decodeDoc(t *testing.T, typedData string) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(typedData), &doc))
	return doc
}

func TestBuildTypedData(t *testing.T) {
	nonce, err := CreateNonce()
	require.NoError(t, err)

	t.Run("fixed schema and defaults", func(t *testing.T) {
		typedData, err := BuildTypedData(testRequirements(), testPayer, nonce, 1700000000)
		require.NoError(t, err)

		doc := decodeDoc(t, typedData)
		assert.Equal(t, "TransferWithAuthorization", doc["primaryType"])

		domain := doc["domain"].(map[string]interface{})
		assert.Equal(t, "USD Coin", domain["name"])
		assert.Equal(t, "2", domain["version"])
		assert.Equal(t, float64(84532), domain["chainId"])
		assert.Equal(t, "0x036cbd53842c5426634e7929541ec2318f3dcf7e", domain["verifyingContract"])

		message := doc["message"].(map[string]interface{})
		assert.Equal(t, strings.ToLower(testPayer), message["from"])
		assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", message["to"])
		assert.Equal(t, "1000", message["value"])
		assert.Equal(t, float64(1700000000), message["validAfter"])
		assert.Equal(t, float64(1700000060), message["validBefore"])
		assert.Equal(t, nonce, message["nonce"])

		types := doc["types"].(map[string]interface{})
		assert.Len(t, types["EIP712Domain"], 4)
		assert.Len(t, types["TransferWithAuthorization"], 6)
	})

	t.Run("extra overrides domain name and version", func(t *testing.T) {
		req := testRequirements()
		req.Extra = map[string]interface{}{"name": "USDC", "version": "3"}
		typedData, err := BuildTypedData(req, testPayer, nonce, 1700000000)
		require.NoError(t, err)

		domain := decodeDoc(t, typedData)["domain"].(map[string]interface{})
		assert.Equal(t, "USDC", domain["name"])
		assert.Equal(t, "3", domain["version"])
	})

	t.Run("timeout defaults to 60 seconds", func(t *testing.T) {
		req := testRequirements()
		req.MaxTimeoutSeconds = nil
		typedData, err := BuildTypedData(req, testPayer, nonce, 100)
		require.NoError(t, err)
		message := decodeDoc(t, typedData)["message"].(map[string]interface{})
		assert.Equal(t, float64(160), message["validBefore"])

		req.MaxTimeoutSeconds = intPtr(300)
		typedData, err = BuildTypedData(req, testPayer, nonce, 100)
		require.NoError(t, err)
		message = decodeDoc(t, typedData)["message"].(map[string]interface{})
		assert.Equal(t, float64(400), message["validBefore"])
	})

	t.Run("unsupported network", func(t *testing.T) {
		req := testRequirements()
		req.Network = "polygon"
		_, err := BuildTypedData(req, testPayer, nonce, 1)
		assert.True(t, errors.Is(err, x402.ErrUnsupportedNetwork))
	})

	t.Run("malformed address never reaches the signer", func(t *testing.T) {
		req := testRequirements()
		req.PayTo = "not-an-address"
		_, err := BuildTypedData(req, testPayer, nonce, 1)
		assert.True(t, errors.Is(err, x402.ErrInvalidTypedData))
	})
}

func TestValidateTypedData(t *testing.T) {
	nonce, _ := CreateNonce()
	valid, err := BuildTypedData(testRequirements(), testPayer, nonce, 1700000000)
	require.NoError(t, err)
	require.NoError(t, ValidateTypedData(valid))

	t.Run("not json", func(t *testing.T) {
		assert.True(t, errors.Is(ValidateTypedData("{"), x402.ErrInvalidTypedData))
	})

	t.Run("domain field missing", func(t *testing.T) {
		doc := decodeDoc(t, valid)
		delete(doc["domain"].(map[string]interface{}), "name")
		data, _ := json.Marshal(doc)
		err := ValidateTypedData(string(data))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid domain structure")
	})

	t.Run("value must be a string", func(t *testing.T) {
		doc := decodeDoc(t, valid)
		doc["message"].(map[string]interface{})["value"] = 1000
		data, _ := json.Marshal(doc)
		err := ValidateTypedData(string(data))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid message structure")
	})

	t.Run("timestamps may be strings", func(t *testing.T) {
		doc := decodeDoc(t, valid)
		msg := doc["message"].(map[string]interface{})
		msg["validAfter"] = "1700000000"
		msg["validBefore"] = "1700000060"
		data, _ := json.Marshal(doc)
		assert.NoError(t, ValidateTypedData(string(data)))
	})

	t.Run("short nonce fails the schema", func(t *testing.T) {
		doc := decodeDoc(t, valid)
		doc["message"].(map[string]interface{})["nonce"] = "0x1234"
		data, _ := json.Marshal(doc)
		assert.True(t, errors.Is(ValidateTypedData(string(data)), x402.ErrInvalidTypedData))
	})
}

func TestAuthorizationBuilder(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("prepare fills authorization and typed data", func(t *testing.T) {
		b := NewAuthorizationBuilder(WithClock(func() time.Time { return now }))
		prepared, err := b.Prepare(testRequirements(), testPayer)
		require.NoError(t, err)

		assert.Equal(t, int64(84532), prepared.ChainID.Int64())
		assert.Equal(t, "1700000000", prepared.Authorization.ValidAfter)
		assert.Equal(t, "1700000060", prepared.Authorization.ValidBefore)
		assert.Equal(t, strings.ToLower(testPayer), prepared.Authorization.From)
		assert.Len(t, prepared.Authorization.Nonce, 66)
		assert.Contains(t, prepared.TypedData, prepared.Authorization.Nonce)

		payload := prepared.Payload("0xsig")
		assert.Equal(t, 1, payload.X402Version)
		assert.Equal(t, "exact", payload.Scheme)
		assert.Equal(t, x402.Network("base-sepolia"), payload.Network)
		assert.Equal(t, "https://api.example.com/api/x", payload.Resource)
		assert.Equal(t, "0xsig", payload.Payload.Signature)
	})

	t.Run("nonces are distinct across attempts", func(t *testing.T) {
		b := NewAuthorizationBuilder()
		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			prepared, err := b.Prepare(testRequirements(), testPayer)
			require.NoError(t, err)
			assert.False(t, seen[prepared.Authorization.Nonce])
			seen[prepared.Authorization.Nonce] = true
		}
	})

	t.Run("colliding nonce source is rejected", func(t *testing.T) {
		fixed := "0x" + strings.Repeat("ab", 32)
		b := NewAuthorizationBuilder(WithNonceSource(func() (string, error) { return fixed, nil }))

		_, err := b.Prepare(testRequirements(), testPayer)
		require.NoError(t, err)

		_, err = b.Prepare(testRequirements(), testPayer)
		assert.True(t, errors.Is(err, x402.ErrNonceReuse))
	})

	t.Run("clocked builder keeps nonces live on its own clock", func(t *testing.T) {
		fixed := "0x" + strings.Repeat("ef", 32)
		b := NewAuthorizationBuilder(
			WithClock(func() time.Time { return now }),
			WithNonceSource(func() (string, error) { return fixed, nil }),
		)

		_, err := b.Prepare(testRequirements(), testPayer)
		require.NoError(t, err)

		_, err = b.Prepare(testRequirements(), testPayer)
		assert.True(t, errors.Is(err, x402.ErrNonceReuse))
	})

	t.Run("released nonce can be reused", func(t *testing.T) {
		fixed := "0x" + strings.Repeat("cd", 32)
		b := NewAuthorizationBuilder(WithNonceSource(func() (string, error) { return fixed, nil }))

		prepared, err := b.Prepare(testRequirements(), testPayer)
		require.NoError(t, err)
		b.Release(prepared)

		_, err = b.Prepare(testRequirements(), testPayer)
		assert.NoError(t, err)
	})

	t.Run("invalid requirements", func(t *testing.T) {
		req := testRequirements()
		req.PayTo = ""
		_, err := NewAuthorizationBuilder().Prepare(req, testPayer)
		assert.True(t, errors.Is(err, x402.ErrMalformedChallenge))
	})
}

func TestSignAndVerifyPayload(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)

	req := testRequirements()
	prepared, err := NewAuthorizationBuilder().Prepare(req, testPayer)
	require.NoError(t, err)

	digest, err := HashTypedDataString(prepared.TypedData)
	require.NoError(t, err)
	assert.Len(t, digest, 32)

	sig, err := crypto.Sign(digest, key)
	require.NoError(t, err)
	sig[64] += 27

	signer, err := RecoverSigner(digest, BytesToHex(sig))
	require.NoError(t, err)
	assert.Equal(t, testPayer, signer.Hex())

	payload := prepared.Payload(BytesToHex(sig))
	require.NoError(t, VerifyPayload(payload, req))

	t.Run("tampered value fails verification", func(t *testing.T) {
		tampered := payload
		tampered.Payload.Authorization.Value = "999999"
		assert.Error(t, VerifyPayload(tampered, req))
	})

	t.Run("domain override changes the digest", func(t *testing.T) {
		other := req
		other.Extra = map[string]interface{}{"name": "Other"}
		assert.Error(t, VerifyPayload(payload, other))
	})
}

func TestUint256JSON(t *testing.T) {
	var v struct {
		A Uint256 `json:"a"`
		B Uint256 `json:"b"`
		C Uint256 `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":84532,"b":"1700000000","c":"0x10"}`), &v))
	assert.Equal(t, int64(84532), v.A.Int64())
	assert.Equal(t, int64(1700000000), v.B.Int64())
	assert.Equal(t, int64(16), v.C.Int64())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":84532,"b":1700000000,"c":16}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"-1"}`), &v))
}
