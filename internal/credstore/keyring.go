package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name keys are filed under.
const KeyringService = "webos-remote"

// KeyringStore keeps keys in the operating system keyring, one entry per
// device address.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store filing keys under service.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// Load returns the key stored for address.
func (s *KeyringStore) Load(_ context.Context, address string) (string, error) {
	key, err := keyring.Get(s.service, address)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return key, nil
}

// Save stores the key for address.
func (s *KeyringStore) Save(_ context.Context, address, key string) error {
	if err := keyring.Set(s.service, address, key); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}
