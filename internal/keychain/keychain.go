// Package keychain holds the vault key for credential encryption.
//
// Key material is kept by a Store. On macOS the Store is the login Keychain
// with items stored as generic passwords:
//   - Service: "com.voiceauth" (all voiceauth items share this service)
//   - Account: the key alias (e.g. "VoiceAuthCredentialKey")
//   - Label: "voiceauth: <alias>" (for Keychain Access.app visibility)
//
// Items are scoped with kSecAttrAccessibleWhenUnlockedThisDeviceOnly:
// never synced to iCloud, never available when the machine is locked.
// Elsewhere the Store is a sealed file under ~/.voiceauth.
//
// Callers never see key bytes. A Keyring loads the key into a memguard
// enclave and exposes only Seal and Open.
package keychain

import "errors"

// ServiceName is the Keychain service attribute for all voiceauth items.
const ServiceName = "com.voiceauth"

// ErrNotFound is returned when an item does not exist in the store.
var ErrNotFound = errors.New("keychain item not found")

// Store is the interface for raw key-material storage.
type Store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	List() ([]string, error)
	Delete(key string) error
}
