package keychain

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benaskins/voiceauth/internal/audit"
)

// KeyMetadata tracks when a vault key was created and last loaded.
type KeyMetadata struct {
	CreatedAt  time.Time `json:"created_at"`
	LastLoaded time.Time `json:"last_loaded,omitempty"`
}

// MetadataStore persists key metadata to a JSON file.
type MetadataStore struct {
	mu       sync.RWMutex
	path     string
	metadata map[string]*KeyMetadata
}

// NewMetadataStore loads or creates a metadata file.
func NewMetadataStore(path string) (*MetadataStore, error) {
	ms := &MetadataStore{
		path:     path,
		metadata: make(map[string]*KeyMetadata),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &ms.metadata); jsonErr != nil {
			slog.Warn("corrupt key metadata file, starting fresh", "path", path, "error", jsonErr)
		}
	}
	// A missing file starts empty.

	return ms, nil
}

// Get returns a copy of the metadata for an alias, or nil if not tracked.
func (ms *MetadataStore) Get(alias string) *KeyMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.metadata[alias]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// Set records metadata for an alias and persists to disk.
func (ms *MetadataStore) Set(alias string, meta *KeyMetadata) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.metadata[alias] = meta
	return ms.save()
}

// Delete removes metadata for an alias.
func (ms *MetadataStore) Delete(alias string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.metadata, alias)
	return ms.save()
}

func (ms *MetadataStore) save() error {
	data, err := json.MarshalIndent(ms.metadata, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := ms.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, ms.path)
}

// AuditedStore wraps a Store and records key provisioning in the audit log
// and metadata file. The stored value is never logged.
type AuditedStore struct {
	inner    Store
	audit    *audit.Logger
	metadata *MetadataStore
	actor    string // "cli", "native", "bridge-host"
}

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner Store, auditLog *audit.Logger, metadata *MetadataStore, actor string) *AuditedStore {
	return &AuditedStore{
		inner:    inner,
		audit:    auditLog,
		metadata: metadata,
		actor:    actor,
	}
}

func (s *AuditedStore) Set(key, value string) error {
	if err := s.inner.Set(key, value); err != nil {
		s.audit.Log(audit.Entry{
			Action: audit.ActionKeyGenerate,
			Alias:  key,
			Actor:  s.actor,
			Error:  err.Error(),
		})
		return fmt.Errorf("audited store set: %w", err)
	}

	// Audit logging is best-effort.
	s.audit.Log(audit.Entry{
		Action:  audit.ActionKeyGenerate,
		Alias:   key,
		Actor:   s.actor,
		Outcome: "ok",
	})

	if err := s.metadata.Set(key, &KeyMetadata{CreatedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("saving key metadata: %w", err)
	}
	return nil
}

func (s *AuditedStore) Get(key string) (string, error) {
	val, err := s.inner.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("audited store get: %w", err)
	}

	// Audit logging is best-effort.
	s.audit.Log(audit.Entry{
		Action:  audit.ActionKeyLoad,
		Alias:   key,
		Actor:   s.actor,
		Outcome: "ok",
	})

	meta := s.metadata.Get(key)
	if meta == nil {
		meta = &KeyMetadata{}
	}
	meta.LastLoaded = time.Now().UTC()
	if err := s.metadata.Set(key, meta); err != nil {
		slog.Warn("saving key metadata", "alias", key, "error", err)
	}
	return val, nil
}

func (s *AuditedStore) List() ([]string, error) {
	return s.inner.List()
}

func (s *AuditedStore) Delete(key string) error {
	if err := s.inner.Delete(key); err != nil {
		return fmt.Errorf("audited store delete: %w", err)
	}
	if err := s.metadata.Delete(key); err != nil {
		return fmt.Errorf("deleting key metadata: %w", err)
	}
	return nil
}

// Metadata returns the metadata store for direct access.
func (s *AuditedStore) Metadata() *MetadataStore {
	return s.metadata
}
