package x402

import "context"

// WalletAccount is the connection state reported by a wallet.
type WalletAccount struct {
	Address        string `json:"address,omitempty"`
	IsConnected    bool   `json:"is_connected"`
	IsConnecting   bool   `json:"is_connecting"`
	IsDisconnected bool   `json:"is_disconnected"`
	ChainID        uint64 `json:"chain_id,omitempty"`
	Connector      string `json:"connector,omitempty"`
}

// Wallet signs typed-data documents on behalf of the payer.
type Wallet interface {
	// CurrentAccount returns the account the wallet is connected with.
	CurrentAccount(ctx context.Context) (*WalletAccount, error)

	// SignTypedData signs the JSON typed-data document and returns a
	// 0x-prefixed 65 byte signature.
	SignTypedData(ctx context.Context, typedData string) (string, error)
}

// CheckPayer resolves the wallet's account and returns the payer address,
// or an ErrPaymentRequiredNoWallet error describing why payment cannot proceed.
func CheckPayer(ctx context.Context, wallet Wallet) (string, error) {
	if wallet == nil {
		return "", NewPaymentError(ErrCodePaymentRequiredNoWallet,
			"No wallet connected. Please connect a wallet to access paid features.", nil)
	}

	account, err := wallet.CurrentAccount(ctx)
	if err != nil {
		return "", NewPaymentError(ErrCodePaymentRequiredNoWallet, "failed to read wallet account", err)
	}
	if account == nil || !account.IsConnected || account.IsDisconnected {
		return "", NewPaymentError(ErrCodePaymentRequiredNoWallet,
			"Wallet not connected. Please connect your wallet to access paid features.", nil)
	}
	if account.Address == "" {
		return "", NewPaymentError(ErrCodePaymentRequiredNoWallet, "No wallet address available", nil)
	}
	return account.Address, nil
}
