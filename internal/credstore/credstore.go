// Package credstore is the persistent, flat string namespace that holds
// encrypted credential blobs keyed by identifier.
//
// Values are opaque text. The store never sees plaintext secrets.
package credstore

import (
	"context"
	"fmt"
)

// DefaultNamespace is the name of the credentials namespace.
const DefaultNamespace = "voice_auth_credentials"

// Namespace is a string-keyed persistent map. Concurrent writes to the same
// key are last-write-wins.
type Namespace interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendLibSQL = "libsql"
	BackendMemory = "memory"
)

// Open returns the namespace for backend. path is a file path for "file"
// and a libSQL URL (e.g. "file:/path/credentials.db") for "libsql".
func Open(ctx context.Context, backend, path string) (Namespace, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendLibSQL:
		return NewLibSQLStore(ctx, path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown credential store backend %q", backend)
	}
}
