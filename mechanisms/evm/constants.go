package evm

import (
	"math/big"
)

const (
	// Scheme identifier
	SchemeExact = "exact"

	// Default token decimals for USDC
	DefaultDecimals = 6

	// Domain defaults used when the requirement carries no extra.name / extra.version
	DefaultDomainName    = "USD Coin"
	DefaultDomainVersion = "2"

	// EIP-712 type names
	TypeEIP712Domain              = "EIP712Domain"
	TypeTransferWithAuthorization = "TransferWithAuthorization"

	// NonceLength is the size of an EIP-3009 nonce in bytes.
	NonceLength = 32
)

var (
	// Network chain IDs
	ChainIDEthereum        = big.NewInt(1)
	ChainIDEthereumSepolia = big.NewInt(11155111)
	ChainIDBase            = big.NewInt(8453)
	ChainIDBaseSepolia     = big.NewInt(84532)

	// NetworkConfigs maps every accepted network name to its chain and the
	// USDC deployment on it. Aliases share a config.
	NetworkConfigs = map[string]NetworkConfig{
		"base-sepolia": {
			ChainID: ChainIDBaseSepolia,
			DefaultAsset: AssetInfo{
				Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				Name:     "USDC",
				Version:  "2",
				Decimals: DefaultDecimals,
			},
		},
		"base-mainnet":     baseMainnet,
		"base":             baseMainnet,
		"ethereum-mainnet": ethereumMainnet,
		"ethereum":         ethereumMainnet,
		"ethereum-sepolia": ethereumSepolia,
		"sepolia":          ethereumSepolia,
	}

	baseMainnet = NetworkConfig{
		ChainID: ChainIDBase,
		DefaultAsset: AssetInfo{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	}

	ethereumMainnet = NetworkConfig{
		ChainID: ChainIDEthereum,
		DefaultAsset: AssetInfo{
			Address:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	}

	ethereumSepolia = NetworkConfig{
		ChainID: ChainIDEthereumSepolia,
		DefaultAsset: AssetInfo{
			Address:  "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			Name:     "USDC",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	}
)
