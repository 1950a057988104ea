// Package credstore persists pairing credentials keyed by device address.
package credstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend kinds accepted by Open.
const (
	KindFile    = "file"
	KindSQLite  = "sqlite"
	KindKeyring = "keyring"
)

// KeyFileName is the default key file name.
const KeyFileName = ".aiopylgtv"

// Store loads and saves client keys. Load returns "" for unknown addresses.
type Store interface {
	Load(ctx context.Context, address string) (string, error)
	Save(ctx context.Context, address, key string) error
}

// Open returns the backend named by kind. path is the key file or database
// location and is ignored by the keyring backend.
func Open(kind, path string) (Store, error) {
	switch kind {
	case "", KindFile:
		return NewFileStore(path), nil
	case KindSQLite:
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindKeyring:
		return NewKeyringStore(KeyringService), nil
	default:
		return nil, fmt.Errorf("unknown key store %q", kind)
	}
}

// DefaultPath returns the key file in the home directory when it is
// writable, otherwise in the working directory.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil && writable(home) {
		return filepath.Join(home, KeyFileName)
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, KeyFileName)
	}
	return KeyFileName
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".webos-remote-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
