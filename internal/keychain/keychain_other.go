//go:build !darwin

package keychain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PassphraseEnv overrides the machine-derived passphrase of the sealed
// keystore file.
const PassphraseEnv = "VOICEAUTH_KEYSTORE_PASSPHRASE"

// NewSystemStore returns a sealed FileStore in dir on non-darwin platforms.
// The macOS Keychain is not available; the file is encrypted under a key
// derived from PassphraseEnv or, when unset, from the machine id and service.
func NewSystemStore(service, dir string) (Store, error) {
	if service == "" {
		service = ServiceName
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating keystore dir: %w", err)
	}
	passphrase := os.Getenv(PassphraseEnv)
	if passphrase == "" {
		passphrase = "voiceauth:" + service + ":" + machineID()
	}
	return NewFileStore(filepath.Join(dir, "keystore.sealed"), passphrase), nil
}

func machineID() string {
	for _, p := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(p); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	host, _ := os.Hostname()
	return host
}
