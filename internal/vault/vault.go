// Package vault encrypts per-identity secrets at rest under a device-bound
// vault key.
//
// A stored record is base64(nonce ‖ ciphertext ‖ tag) with a 12-byte
// random nonce per write, kept in a credential namespace keyed by
// identifier. The vault key itself is reachable only through the
// Keystore's Seal and Open.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benaskins/voiceauth/internal/audit"
	"github.com/benaskins/voiceauth/internal/credstore"
	"github.com/benaskins/voiceauth/internal/keychain"
)

// Keystore is the opaque encrypt/decrypt capability backed by the vault key.
type Keystore interface {
	EnsureKey(ctx context.Context) error
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}

// Vault stores, retrieves and evicts encrypted credentials.
type Vault struct {
	keys   Keystore
	ns     credstore.Namespace
	audit  *audit.Logger
	actor  string
	logger *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithAudit records every operation in the audit log under actor.
func WithAudit(l *audit.Logger, actor string) Option {
	return func(v *Vault) {
		v.audit = l
		v.actor = actor
	}
}

// New returns a vault over keys and ns.
func New(keys Keystore, ns credstore.Namespace, opts ...Option) *Vault {
	v := &Vault{
		keys:   keys,
		ns:     ns,
		logger: slog.With("component", "vault"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// EnsureKey provisions the vault key if it does not exist yet.
func (v *Vault) EnsureKey(ctx context.Context) error {
	if err := v.keys.EnsureKey(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		v.logger.Error("vault key provisioning failed", "error", err)
		return &KeyProvisioningError{Err: err}
	}
	return nil
}

// Store encrypts secret and writes it under identifier, replacing any
// previous value.
func (v *Vault) Store(ctx context.Context, identifier, secret string) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}
	if err := v.EnsureKey(ctx); err != nil {
		return err
	}

	blob, err := v.keys.Seal([]byte(secret))
	if err != nil {
		v.record(audit.ActionCredentialStore, identifier, "", err)
		if errors.Is(err, keychain.ErrKeyUnavailable) {
			return &KeyProvisioningError{Err: err}
		}
		return &EncryptionError{Identifier: identifier, Err: err}
	}

	if err := v.ns.Put(ctx, identifier, base64.StdEncoding.EncodeToString(blob)); err != nil {
		v.record(audit.ActionCredentialStore, identifier, "", err)
		return fmt.Errorf("persisting credential: %w", err)
	}

	v.record(audit.ActionCredentialStore, identifier, "ok", nil)
	v.logger.Debug("credential stored", "identifier", identifier)
	return nil
}

// Retrieve returns the secret stored under identifier. ok is false when
// nothing is stored. A stored blob that cannot be opened yields a
// *DecryptionError, never ok == false.
func (v *Vault) Retrieve(ctx context.Context, identifier string) (secret string, ok bool, err error) {
	if identifier == "" {
		return "", false, ErrEmptyIdentifier
	}

	encoded, found, err := v.ns.Get(ctx, identifier)
	if err != nil {
		return "", false, fmt.Errorf("reading credential: %w", err)
	}
	if !found {
		v.record(audit.ActionCredentialRead, identifier, "absent", nil)
		return "", false, nil
	}

	if err := v.EnsureKey(ctx); err != nil {
		return "", false, err
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		v.record(audit.ActionCredentialRead, identifier, "corrupt", err)
		return "", false, &DecryptionError{Identifier: identifier, Err: err}
	}

	plaintext, err := v.keys.Open(blob)
	if err != nil {
		if errors.Is(err, keychain.ErrKeyUnavailable) {
			return "", false, &KeyProvisioningError{Err: err}
		}
		v.record(audit.ActionCredentialRead, identifier, "corrupt", err)
		v.logger.Warn("stored credential could not be decrypted", "identifier", identifier)
		return "", false, &DecryptionError{Identifier: identifier, Err: err}
	}

	v.record(audit.ActionCredentialRead, identifier, "ok", nil)
	return string(plaintext), true, nil
}

// Delete removes the credential for identifier and reports whether one
// existed.
func (v *Vault) Delete(ctx context.Context, identifier string) (bool, error) {
	if identifier == "" {
		return false, ErrEmptyIdentifier
	}
	existed, err := v.ns.Remove(ctx, identifier)
	if err != nil {
		v.record(audit.ActionCredentialDelete, identifier, "", err)
		return false, fmt.Errorf("deleting credential: %w", err)
	}
	outcome := "absent"
	if existed {
		outcome = "ok"
		v.logger.Debug("credential deleted", "identifier", identifier)
	}
	v.record(audit.ActionCredentialDelete, identifier, outcome, nil)
	return existed, nil
}

// List returns the identifiers that have a stored credential.
func (v *Vault) List(ctx context.Context) ([]string, error) {
	return v.ns.Keys(ctx)
}

func (v *Vault) record(action audit.Action, identifier, outcome string, err error) {
	e := audit.Entry{
		Action:     action,
		Identifier: identifier,
		Actor:      v.actor,
		Outcome:    outcome,
	}
	if err != nil {
		e.Error = err.Error()
	}
	// Audit logging is best-effort.
	v.audit.Log(e)
}
