package evm

import (
	"fmt"
	"math/big"
	"sort"

	x402 "github.com/castlens/x402client"
)

// GetNetworkConfig looks up a network by its exact legacy name. Unknown
// names are an error; there is no fallback chain.
func GetNetworkConfig(network x402.Network) (NetworkConfig, error) {
	cfg, ok := NetworkConfigs[string(network)]
	if !ok {
		return NetworkConfig{}, x402.NewPaymentError(x402.ErrCodeUnsupportedNetwork,
			fmt.Sprintf("Unsupported network: %s", network), nil).
			WithDetail("network", string(network))
	}
	return cfg, nil
}

// GetEvmChainID maps a network name to its chain id.
func GetEvmChainID(network x402.Network) (*big.Int, error) {
	cfg, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(cfg.ChainID), nil
}

// SupportedNetworks returns every accepted network name, sorted.
func SupportedNetworks() []string {
	names := make([]string, 0, len(NetworkConfigs))
	for name := range NetworkConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NetworkForChainID returns the canonical network name for a chain id.
func NetworkForChainID(chainID uint64) (x402.Network, bool) {
	switch chainID {
	case ChainIDBaseSepolia.Uint64():
		return "base-sepolia", true
	case ChainIDBase.Uint64():
		return "base", true
	case ChainIDEthereum.Uint64():
		return "ethereum", true
	case ChainIDEthereumSepolia.Uint64():
		return "sepolia", true
	}
	return "", false
}
