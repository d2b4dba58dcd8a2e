package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	x402http "github.com/castlens/x402client/http"
	"github.com/castlens/x402client/pkg/config"
	"github.com/castlens/x402client/pkg/jobstore"
	"github.com/castlens/x402client/pkg/logging"
	evmsigner "github.com/castlens/x402client/signers/evm"
)

// annotationOffline marks commands that run without a base URL.
const annotationOffline = "offline"

var offline = map[string]string{annotationOffline: "true"}

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "x402call",
	Short: "Call payment-gated APIs",
	Long: `Call endpoints protected by HTTP 402 payment challenges.

Challenges are answered with an EIP-3009 TransferWithAuthorization signed by
the configured key. Long running analyses are tracked in a local job store
and can be resumed later.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var opts []config.LoadOption
		if cmd.Annotations[annotationOffline] == "true" {
			opts = append(opts, config.WithOptionalBaseURL())
		}

		var err error
		cfg, err = config.Load(configPath, opts...)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(callCmd, jobsCmd, keyCmd)
}

// loadWallet returns the configured wallet, or nil when no key is set up.
func loadWallet() (x402.Wallet, error) {
	key := cfg.Wallet.PrivateKey
	if key == "" {
		stored, err := keyring.Get(cfg.Wallet.KeyringService, cfg.Wallet.KeyringUser)
		if errors.Is(err, keyring.ErrNotFound) {
			logger.Debug("no wallet key configured")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read key from keyring: %w", err)
		}
		key = stored
	}

	var opts []evmsigner.WalletOption
	if cfg.Wallet.ChainID != 0 {
		opts = append(opts, evmsigner.WithChainID(cfg.Wallet.ChainID))
	}
	wallet, err := evmsigner.NewWalletFromPrivateKey(key, opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("wallet loaded", zap.String("address", wallet.Address()))
	return wallet, nil
}

func newClient() (*x402http.Client, error) {
	opts := []x402http.ClientOption{
		x402http.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		x402http.WithLogger(logger),
		x402http.WithPollConfig(cfg.Polling),
	}

	wallet, err := loadWallet()
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		opts = append(opts, x402http.WithWallet(wallet))
	}

	if cfg.Auth.Enabled() {
		signer, err := x402http.NewRequestSigner(cfg.Auth.Token, cfg.Auth.Secret)
		if err != nil {
			return nil, err
		}
		opts = append(opts, x402http.WithRequestSigner(signer))
	}

	return x402http.NewClient(cfg.BaseURL, opts...), nil
}

func openStore() (*jobstore.Store, error) {
	return jobstore.Open(cfg.JobStore.Path)
}
