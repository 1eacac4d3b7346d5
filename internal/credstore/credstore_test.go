package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func namespaces(t *testing.T) map[string]Namespace {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	file, err := NewFileStore(filepath.Join(dir, "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	lib, err := NewLibSQLStore(ctx, "file:"+filepath.Join(dir, "credentials.db"))
	if err != nil {
		t.Fatalf("NewLibSQLStore: %v", err)
	}
	t.Cleanup(func() { lib.Close() })

	return map[string]Namespace{
		"memory": NewMemoryStore(),
		"file":   file,
		"libsql": lib,
	}
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	for name, ns := range namespaces(t) {
		if err := ns.Put(ctx, "alice", "blob-a"); err != nil {
			t.Fatalf("%s: Put: %v", name, err)
		}
		v, ok, err := ns.Get(ctx, "alice")
		if err != nil || !ok {
			t.Fatalf("%s: Get: ok=%v err=%v", name, ok, err)
		}
		if v != "blob-a" {
			t.Errorf("%s: expected blob-a, got %q", name, v)
		}
	}
}

func TestGetAbsent(t *testing.T) {
	ctx := context.Background()
	for name, ns := range namespaces(t) {
		_, ok, err := ns.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("%s: Get: %v", name, err)
		}
		if ok {
			t.Errorf("%s: expected absent", name)
		}
	}
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, ns := range namespaces(t) {
		ns.Put(ctx, "alice", "first")
		ns.Put(ctx, "alice", "second")
		v, _, _ := ns.Get(ctx, "alice")
		if v != "second" {
			t.Errorf("%s: expected second, got %q", name, v)
		}
	}
}

func TestRemoveReportsExistence(t *testing.T) {
	ctx := context.Background()
	for name, ns := range namespaces(t) {
		ns.Put(ctx, "alice", "blob")

		removed, err := ns.Remove(ctx, "alice")
		if err != nil || !removed {
			t.Errorf("%s: first Remove = %v, %v; want true", name, removed, err)
		}
		removed, err = ns.Remove(ctx, "alice")
		if err != nil || removed {
			t.Errorf("%s: second Remove = %v, %v; want false", name, removed, err)
		}
	}
}

func TestKeysSorted(t *testing.T) {
	ctx := context.Background()
	for name, ns := range namespaces(t) {
		ns.Put(ctx, "carol", "c")
		ns.Put(ctx, "alice", "a")
		ns.Put(ctx, "bob", "b")

		keys, err := ns.Keys(ctx)
		if err != nil {
			t.Fatalf("%s: Keys: %v", name, err)
		}
		want := []string{"alice", "bob", "carol"}
		if len(keys) != len(want) {
			t.Fatalf("%s: expected %v, got %v", name, want, keys)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("%s: keys[%d] = %q, want %q", name, i, keys[i], want[i])
			}
		}
	}
}

func TestFileStoreReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	s1, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s1.Put(ctx, "alice", "blob")

	s2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	v, ok, _ := s2.Get(ctx, "alice")
	if !ok || v != "blob" {
		t.Errorf("expected blob after reload, got %q (ok=%v)", v, ok)
	}

	info, _ := os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestFileStoreSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	host, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cli, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := host.Put(ctx, "ada", "blob-a"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	existed, err := cli.Remove(ctx, "ada")
	if err != nil || !existed {
		t.Fatalf("Remove = (%v, %v), want (true, nil)", existed, err)
	}
	if err := host.Put(ctx, "bob", "blob-b"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fresh, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok, _ := fresh.Get(ctx, "ada"); ok {
		t.Error("removed credential came back after another instance wrote")
	}
	if _, ok, _ := host.Get(ctx, "ada"); ok {
		t.Error("host instance still sees removed credential")
	}
	keys, _ := fresh.Keys(ctx)
	if len(keys) != 1 || keys[0] != "bob" {
		t.Errorf("Keys = %v, want [bob]", keys)
	}
}

func TestFileStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		s, err := NewFileStore(path)
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Put(ctx, fmt.Sprintf("user%d", i), "blob"); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	s, _ := NewFileStore(path)
	keys, _ := s.Keys(ctx)
	if len(keys) != 10 {
		t.Errorf("got %d keys, want 10: %v", len(keys), keys)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	if _, err := NewFileStore(path); err == nil {
		t.Error("expected error for corrupt store file")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), "redis", ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}
