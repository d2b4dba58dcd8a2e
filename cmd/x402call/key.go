package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	evmsigner "github.com/castlens/x402client/signers/evm"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the payment key in the OS keyring",
}

var keySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a private key read from stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(cmd.ErrOrStderr(), "private key: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read key: %w", err)
		}
		key := strings.TrimSpace(line)

		wallet, err := evmsigner.NewWalletFromPrivateKey(key)
		if err != nil {
			return err
		}
		if err := keyring.Set(cfg.Wallet.KeyringService, cfg.Wallet.KeyringUser, key); err != nil {
			return fmt.Errorf("failed to store key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored key for %s\n", wallet.Address())
		return nil
	},
	Annotations: offline,
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the address of the configured key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, err := loadWallet()
		if err != nil {
			return err
		}
		if wallet == nil {
			return errors.New("no key configured")
		}
		account, err := wallet.CurrentAccount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), account.Address)
		return nil
	},
	Annotations: offline,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := keyring.Delete(cfg.Wallet.KeyringService, cfg.Wallet.KeyringUser)
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no key stored")
		}
		return err
	},
	Annotations: offline,
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyShowCmd, keyDeleteCmd)
}
