// Package cmd contains all CLI commands for the wallet.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/didkey"
	"github.com/blockbase-labs/oid4vc-suite/internal/signer"
	"github.com/blockbase-labs/oid4vc-suite/internal/storage"
	"github.com/blockbase-labs/oid4vc-suite/internal/storage/memory"
	"github.com/blockbase-labs/oid4vc-suite/internal/storage/mongodb"
	"github.com/blockbase-labs/oid4vc-suite/internal/wallet"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
	"github.com/blockbase-labs/oid4vc-suite/pkg/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Holder wallet for credential issuance and presentation",
	Long: `The wallet holds a did:key identity, obtains credentials from an issuer
through OpenID4VCI and presents them to a verifier through OpenID4VP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(presentCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(didCmd)
}

// environment bundles everything a wallet command needs.
type environment struct {
	wallet *wallet.Wallet
	store  storage.Store
	logger *zap.Logger
}

func (e *environment) close() {
	_ = e.store.Close()
	_ = e.logger.Sync()
}

func setup() (*environment, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.ValidateWallet(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	keyPair, err := didkey.LoadOrGenerate(cfg.Wallet.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading wallet key: %w", err)
	}
	walletSigner, err := signer.New(keyPair)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	return &environment{
		wallet: wallet.New(store, walletSigner, cfg.Wallet.RedirectURI, logger),
		store:  store,
		logger: logger,
	}, nil
}

func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Type == "mongodb" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
	}
	return memory.NewStore(), nil
}
