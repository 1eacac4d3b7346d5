package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/benaskins/voiceauth/internal/audit"
	"github.com/benaskins/voiceauth/internal/config"
	"github.com/benaskins/voiceauth/internal/credstore"
	"github.com/benaskins/voiceauth/internal/keychain"
	"github.com/benaskins/voiceauth/internal/vault"
)

var logLevel = new(slog.LevelVar)

// setupLogging installs the default logger at the configured level.
func setupLogging() error {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return err
	}
	applyLogLevel(cfg)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	return nil
}

func applyLogLevel(cfg *config.Config) {
	if debug {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(cfg.Level())
}

// stack is the credential side of the SDK wired from config: keystore,
// vault key, credential namespace and audit log.
type stack struct {
	cfg      *config.Config
	dir      string
	audit    *audit.Logger
	keyStore *keychain.AuditedStore
	keyring  *keychain.Keyring
	ns       credstore.Namespace
	vault    *vault.Vault
}

func openStack(ctx context.Context, actor string) (*stack, error) {
	dir, err := voiceauthHome()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, err
	}

	al, err := audit.NewLogger(filepath.Join(dir, "audit.log"))
	if err != nil {
		return nil, err
	}

	sys, err := keychain.NewSystemStore(cfg.KeychainService(), dir)
	if err != nil {
		al.Close()
		return nil, fmt.Errorf("opening keystore: %w", err)
	}
	meta, err := keychain.NewMetadataStore(filepath.Join(dir, "key-metadata.json"))
	if err != nil {
		al.Close()
		return nil, err
	}
	keyStore := keychain.NewAuditedStore(sys, al, meta, actor)
	keyring := keychain.NewKeyring(keyStore, keychain.DefaultAlias)

	ns, err := credstore.Open(ctx, cfg.StoreBackend(), cfg.StorePath(dir))
	if err != nil {
		al.Close()
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	return &stack{
		cfg:      cfg,
		dir:      dir,
		audit:    al,
		keyStore: keyStore,
		keyring:  keyring,
		ns:       ns,
		vault:    vault.New(keyring, ns, vault.WithAudit(al, actor)),
	}, nil
}

func (s *stack) Close() {
	s.keyring.Forget()
	if c, ok := s.ns.(io.Closer); ok {
		c.Close()
	}
	s.audit.Close()
}
