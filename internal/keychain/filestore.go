package keychain

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/benaskins/voiceauth/internal/filelock"
)

const (
	sealedVersion = 1
	sealedPrefix  = "VAKS1\n"
	saltSize      = 16
)

// ErrSealBroken is returned when the sealed file cannot be authenticated
// under the configured passphrase.
var ErrSealBroken = errors.New("keystore seal could not be opened")

type sealedFile struct {
	Version    uint32 `json:"version"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore keeps items in a single file sealed with XChaCha20-Poly1305
// under an Argon2id-derived key. Writes are atomic (temp file + rename) and
// serialised across processes with an advisory lock.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase string

	// derived key cache for the salt currently on disk
	salt []byte
	key  []byte
}

// NewFileStore returns a store sealed at path.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

func (s *FileStore) Set(key, value string) error {
	return s.update(func(items map[string]string) (bool, error) {
		items[key] = value
		return true, nil
	})
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", err
	}
	val, ok := items[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}

func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) Delete(key string) error {
	return s.update(func(items map[string]string) (bool, error) {
		if _, ok := items[key]; !ok {
			return false, nil
		}
		delete(items, key)
		return true, nil
	})
}

func (s *FileStore) update(fn func(map[string]string) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return filelock.With(s.path, func() error {
		items, err := s.load()
		if err != nil {
			return err
		}
		changed, err := fn(items)
		if err != nil || !changed {
			return err
		}
		return s.save(items)
	})
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("reading keystore: %w", err)
	}
	if !bytes.HasPrefix(data, []byte(sealedPrefix)) {
		return nil, fmt.Errorf("%w: unrecognised format", ErrSealBroken)
	}

	var sf sealedFile
	if err := json.Unmarshal(data[len(sealedPrefix):], &sf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	if sf.Version != sealedVersion || sf.KDF != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSealBroken, sf.Version)
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(sf.Salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, sf.Nonce, sf.Ciphertext, nil)
	if err != nil {
		return nil, ErrSealBroken
	}
	defer wipe(plaintext)

	items := make(map[string]string)
	if err := json.Unmarshal(plaintext, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	return items, nil
}

func (s *FileStore) save(items map[string]string) error {
	plaintext, err := json.Marshal(items)
	if err != nil {
		return err
	}
	defer wipe(plaintext)

	salt := s.salt
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generating salt: %w", err)
		}
	}
	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	raw, err := json.Marshal(sealedFile{
		Version:    sealedVersion,
		KDF:        "argon2id",
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	})
	if err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, append([]byte(sealedPrefix), raw...), 0600); err != nil {
		return fmt.Errorf("writing keystore: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

// deriveKey returns the file key for salt, reusing the cached derivation
// when the salt has not changed.
func (s *FileStore) deriveKey(salt []byte) []byte {
	if s.key != nil && bytes.Equal(s.salt, salt) {
		return s.key
	}
	if s.key != nil {
		wipe(s.key)
	}
	s.salt = append([]byte(nil), salt...)
	s.key = argon2.IDKey([]byte(s.passphrase), salt, 2, 64*1024, 1, chacha20poly1305.KeySize)
	return s.key
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
