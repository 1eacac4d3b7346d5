//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// SystemStore keeps vault key material as generic passwords in the macOS
// Keychain, readable only while the device is unlocked and never synced.
type SystemStore struct {
	service string
}

// NewSystemStore creates a Keychain-backed store. dir is unused on macOS.
func NewSystemStore(service, dir string) (Store, error) {
	if service == "" {
		service = ServiceName
	}
	return &SystemStore{service: service}, nil
}

func (s *SystemStore) query(key string) gokeychain.Item {
	q := gokeychain.NewItem()
	q.SetSecClass(gokeychain.SecClassGenericPassword)
	q.SetService(s.service)
	q.SetAccount(key)
	return q
}

// Set adds the item, or updates it in place when it already exists. The
// item is never deleted first: another process must not observe the key as
// missing and generate a replacement.
func (s *SystemStore) Set(key, value string) error {
	item := s.query(key)
	item.SetLabel(fmt.Sprintf("voiceauth vault key (%s)", key))
	item.SetData([]byte(value))
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	err := gokeychain.AddItem(item)
	if errors.Is(err, gokeychain.ErrorDuplicateItem) {
		update := gokeychain.NewItem()
		update.SetData([]byte(value))
		err = gokeychain.UpdateItem(s.query(key), update)
	}
	if err != nil {
		return fmt.Errorf("keychain set %q: %w", key, err)
	}
	return nil
}

// Get returns the item data. A missing or empty item is ErrNotFound; any
// other Keychain failure (locked, access denied) is returned as is so the
// caller does not mistake it for absence.
func (s *SystemStore) Get(key string) (string, error) {
	q := s.query(key)
	q.SetMatchLimit(gokeychain.MatchLimitOne)
	q.SetReturnData(true)

	results, err := gokeychain.QueryItem(q)
	switch {
	case errors.Is(err, gokeychain.ErrorItemNotFound):
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	case err != nil:
		return "", fmt.Errorf("keychain get %q: %w", key, err)
	case len(results) == 0 || len(results[0].Data) == 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return string(results[0].Data), nil
}

// List returns the key aliases stored under the service.
func (s *SystemStore) List() ([]string, error) {
	accounts, err := gokeychain.GetGenericPasswordAccounts(s.service)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain list: %w", err)
	}
	return accounts, nil
}

// Delete removes an item. Removing a missing item is not an error.
func (s *SystemStore) Delete(key string) error {
	err := gokeychain.DeleteItem(s.query(key))
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("keychain delete %q: %w", key, err)
	}
	return nil
}
