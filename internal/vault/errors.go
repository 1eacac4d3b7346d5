package vault

import (
	"errors"
	"fmt"
)

// ErrEmptyIdentifier is returned for operations on an empty identifier.
var ErrEmptyIdentifier = errors.New("credential identifier is empty")

// KeyProvisioningError means the vault key could not be loaded or generated.
// Secure storage is unusable; callers should surface it and not retry.
type KeyProvisioningError struct {
	Err error
}

func (e *KeyProvisioningError) Error() string {
	return fmt.Sprintf("failed to initialize secure storage: %v", e.Err)
}

func (e *KeyProvisioningError) Unwrap() error { return e.Err }

// EncryptionError means a secret could not be sealed.
type EncryptionError struct {
	Identifier string
	Err        error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("failed to encrypt credential for %q: %v", e.Identifier, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

// DecryptionError means a stored blob exists but could not be opened:
// it is malformed, truncated, altered, or was sealed under another key.
// It is never returned for an identifier with no stored blob.
type DecryptionError struct {
	Identifier string
	Err        error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt credential for %q: %v", e.Identifier, e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }
