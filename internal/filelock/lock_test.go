//go:build unix

package filelock

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

func TestWithSerialisesReadModifyWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	if err := os.WriteFile(path, []byte("0"), 0600); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := With(path, func() error {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				n, _ := strconv.Atoi(string(data))
				return os.WriteFile(path, []byte(strconv.Itoa(n+1)), 0600)
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	data, _ := os.ReadFile(path)
	if string(data) != "20" {
		t.Errorf("counter = %s, want 20", data)
	}
}

func TestWithReturnsCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	want := os.ErrPermission
	if err := With(path, func() error { return want }); err != want {
		t.Errorf("With = %v, want %v", err, want)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("lock file not created: %v", err)
	}
}
