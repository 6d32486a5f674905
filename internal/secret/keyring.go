package secret

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "sophosia"

// KeyringStore implements SecretStore on the OS keyring (macOS Keychain,
// Secret Service, Windows Credential Manager).
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a store scoped to the application service name.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: keyringService}
}

// Set stores a secret, replacing any previous value.
func (k *KeyringStore) Set(key string, value []byte) error {
	if err := keyring.Set(k.service, key, string(value)); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

// Get returns the secret, or an empty slice if there is none.
func (k *KeyringStore) Get(key string) ([]byte, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return []byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get %s: %w", key, err)
	}
	return []byte(v), nil
}

// Delete removes the secret. Deleting a missing key is not an error.
func (k *KeyringStore) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}
