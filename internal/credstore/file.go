package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// FileStore keeps all keys in one JSON object mapping address to key.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path, or DefaultPath when empty.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath()
	}
	return &FileStore{path: path}
}

// Path returns the key file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the key stored for address.
func (s *FileStore) Load(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return "", err
	}
	return keys[address], nil
}

// Save merges the key into the file and rewrites it atomically.
func (s *FileStore) Save(_ context.Context, address, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return err
	}
	keys[address] = key

	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// read parses the key file. A missing or empty file is an empty map.
func (s *FileStore) read() (map[string]string, error) {
	keys := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return keys, nil
	}
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", s.path, err)
	}
	return keys, nil
}
