package keychain

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
)

const (
	// DefaultAlias names the vault key in the Store.
	DefaultAlias = "VoiceAuthCredentialKey"

	// KeySize is the vault key length in bytes (AES-256).
	KeySize = 32

	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

var (
	// ErrKeyUnavailable is returned when the vault key cannot be loaded or
	// generated.
	ErrKeyUnavailable = errors.New("vault key unavailable")

	// ErrCiphertextTooShort is returned by Open for blobs shorter than
	// nonce plus tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Keyring owns the vault key. The key is generated once, kept in the Store
// under a fixed alias and held in memory only inside a memguard enclave.
// Key bytes never leave this type.
type Keyring struct {
	mu      sync.Mutex
	store   Store
	alias   string
	enclave *memguard.Enclave
	logger  *slog.Logger
}

// NewKeyring returns a keyring for the key at alias in store.
func NewKeyring(store Store, alias string) *Keyring {
	if alias == "" {
		alias = DefaultAlias
	}
	return &Keyring{
		store:  store,
		alias:  alias,
		logger: slog.With("component", "keyring"),
	}
}

// Alias returns the key alias.
func (k *Keyring) Alias() string { return k.alias }

// EnsureKey loads the vault key, generating it if the store has none.
// It is idempotent. A store error other than ErrNotFound is not treated
// as absence: generating a new key would orphan every stored credential.
func (k *Keyring) EnsureKey(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ensureLocked()
}

func (k *Keyring) ensureLocked() error {
	if k.enclave != nil {
		return nil
	}

	encoded, err := k.store.Get(k.alias)
	switch {
	case err == nil:
		raw, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil || len(raw) != KeySize {
			wipe(raw)
			return fmt.Errorf("%w: stored key %q is malformed", ErrKeyUnavailable, k.alias)
		}
		k.enclave = memguard.NewEnclave(raw)
		k.logger.Debug("vault key loaded", "alias", k.alias)
		return nil

	case errors.Is(err, ErrNotFound):
		return k.generateLocked()

	default:
		return fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
}

func (k *Keyring) generateLocked() error {
	buf := memguard.NewBufferRandom(KeySize)
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	if err := k.store.Set(k.alias, encoded); err != nil {
		buf.Destroy()
		return fmt.Errorf("%w: storing generated key: %v", ErrKeyUnavailable, err)
	}

	enclave := buf.Seal()
	if enclave == nil {
		return fmt.Errorf("%w: sealing generated key", ErrKeyUnavailable)
	}
	k.enclave = enclave
	k.logger.Info("vault key generated", "alias", k.alias)
	return nil
}

// Seal encrypts plaintext under the vault key with a fresh random nonce
// and returns nonce‖ciphertext‖tag.
func (k *Keyring) Seal(plaintext []byte) ([]byte, error) {
	aead, release, err := k.aead()
	if err != nil {
		return nil, err
	}
	defer release()

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. It fails if the blob was not produced under this key
// or has been altered.
func (k *Keyring) Open(blob []byte) ([]byte, error) {
	aead, release, err := k.aead()
	if err != nil {
		return nil, err
	}
	defer release()

	if len(blob) < NonceSize+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	return aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
}

// Forget drops the in-memory copy of the key. The next operation reloads it
// from the store.
func (k *Keyring) Forget() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enclave = nil
}

func (k *Keyring) aead() (cipher.AEAD, func(), error) {
	k.mu.Lock()
	if err := k.ensureLocked(); err != nil {
		k.mu.Unlock()
		return nil, nil, err
	}
	enclave := k.enclave
	k.mu.Unlock()

	buf, err := enclave.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening enclave: %v", ErrKeyUnavailable, err)
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, buf.Destroy, nil
}
