package keychain

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benaskins/voiceauth/internal/audit"
)

func setupAuditedStore(t *testing.T) (*AuditedStore, string) {
	t.Helper()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	metaPath := filepath.Join(dir, "key-metadata.json")

	auditLog, err := audit.NewLogger(auditPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	meta, err := NewMetadataStore(metaPath)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	return NewAuditedStore(NewMemoryStore(), auditLog, meta, "cli"), auditPath
}

func readAuditEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	entries := make([]audit.Entry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var e audit.Entry
		json.Unmarshal([]byte(line), &e)
		entries = append(entries, e)
	}
	return entries
}

func TestAuditedKeyringLogsGenerateThenLoad(t *testing.T) {
	store, auditPath := setupAuditedStore(t)

	kr := NewKeyring(store, "")
	if err := kr.EnsureKey(context.Background()); err != nil {
		t.Fatalf("EnsureKey: %v", err)
	}

	kr2 := NewKeyring(store, "")
	if err := kr2.EnsureKey(context.Background()); err != nil {
		t.Fatalf("EnsureKey reload: %v", err)
	}

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionKeyGenerate {
		t.Errorf("expected key_generate, got %v", entries[0].Action)
	}
	if entries[1].Action != audit.ActionKeyLoad {
		t.Errorf("expected key_load, got %v", entries[1].Action)
	}
	if entries[0].Alias != DefaultAlias {
		t.Errorf("expected alias %q, got %q", DefaultAlias, entries[0].Alias)
	}

	data, _ := os.ReadFile(auditPath)
	stored, _ := store.inner.Get(DefaultAlias)
	if strings.Contains(string(data), stored) {
		t.Error("audit log contains key material")
	}
}

func TestAuditedStoreTracksMetadata(t *testing.T) {
	store, _ := setupAuditedStore(t)

	store.Set("alias", "v")
	meta := store.Metadata().Get("alias")
	if meta == nil || meta.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt after Set")
	}

	store.Get("alias")
	meta = store.Metadata().Get("alias")
	if meta.LastLoaded.IsZero() {
		t.Error("expected LastLoaded after Get")
	}

	store.Delete("alias")
	if store.Metadata().Get("alias") != nil {
		t.Error("expected metadata removed after Delete")
	}
}

func TestMetadataStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")

	ms1, _ := NewMetadataStore(path)
	ms1.Set("key1", &KeyMetadata{})

	ms2, _ := NewMetadataStore(path)
	if ms2.Get("key1") == nil {
		t.Fatal("expected metadata after reload")
	}
}
