package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/castlens/x402client"
	x402evm "github.com/castlens/x402client/mechanisms/evm"
)

// Connector is reported in WalletAccount.Connector for key-backed wallets.
const Connector = "private-key"

// PrivateKeyWallet implements x402.Wallet with an in-process ECDSA key.
// It behaves like a browser wallet: it only signs documents whose payer is
// its own address and, when pinned to a chain, only for that chain.
type PrivateKeyWallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address

	mu        sync.RWMutex
	chainID   uint64
	connected bool
}

// WalletOption configures a PrivateKeyWallet
type WalletOption func(*PrivateKeyWallet)

// WithChainID pins the wallet to one chain.
func WithChainID(chainID uint64) WalletOption {
	return func(w *PrivateKeyWallet) {
		w.chainID = chainID
	}
}

// NewWalletFromPrivateKey creates a wallet from a hex-encoded private key.
//
// Args:
//
//	privateKeyHex: Hex-encoded private key (with or without "0x" prefix)
//
// Returns:
//
//	A connected wallet ready for use with the HTTP client
//	Error if private key is invalid
func NewWalletFromPrivateKey(privateKeyHex string, opts ...WalletOption) (*PrivateKeyWallet, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewWalletFromKey(privateKey, opts...), nil
}

// NewWalletFromKey wraps an existing key.
func NewWalletFromKey(key *ecdsa.PrivateKey, opts ...WalletOption) *PrivateKeyWallet {
	w := &PrivateKeyWallet{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		connected:  true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Address returns the Ethereum address of the signer.
func (w *PrivateKeyWallet) Address() string {
	return w.address.Hex()
}

// Connect marks the wallet connected.
func (w *PrivateKeyWallet) Connect() {
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
}

// Disconnect marks the wallet disconnected; payments fail until Connect.
func (w *PrivateKeyWallet) Disconnect() {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
}

// CurrentAccount implements x402.Wallet.
func (w *PrivateKeyWallet) CurrentAccount(ctx context.Context) (*x402.WalletAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	account := &x402.WalletAccount{
		IsConnected:    w.connected,
		IsDisconnected: !w.connected,
		ChainID:        w.chainID,
		Connector:      Connector,
	}
	if w.connected {
		account.Address = w.address.Hex()
	}
	return account, nil
}

// SignTypedData implements x402.Wallet. It returns a 65-byte (r, s, v)
// signature as 0x hex with v in {27, 28}.
func (w *PrivateKeyWallet) SignTypedData(ctx context.Context, typedData string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.RLock()
	connected, chainID := w.connected, w.chainID
	w.mu.RUnlock()
	if !connected {
		return "", fmt.Errorf("wallet is disconnected")
	}

	doc, err := x402evm.ParseTypedDataDocument(typedData)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(doc.Message.From, w.address.Hex()) {
		return "", fmt.Errorf("typed data payer %s does not match wallet %s", doc.Message.From, w.address.Hex())
	}
	if chainID != 0 && (!doc.Domain.ChainID.IsUint64() || doc.Domain.ChainID.Uint64() != chainID) {
		return "", fmt.Errorf("typed data chain %s does not match wallet chain %d", doc.Domain.ChainID.String(), chainID)
	}

	digest, err := x402evm.HashTypedDataDocument(doc)
	if err != nil {
		return "", err
	}

	signature, err := crypto.Sign(digest, w.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value for Ethereum (recovery ID 0/1 → 27/28)
	signature[crypto.RecoveryIDOffset] += 27

	return x402evm.BytesToHex(signature), nil
}
