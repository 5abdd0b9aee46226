package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/chimerakang/changedesk"
)

const fileName = "session.json"

// File persists the token as a small JSON document readable only by the owner.
type File struct {
	mu   sync.Mutex
	path string
	key  string
}

var _ changedesk.TokenStore = (*File)(nil)

// NewFile builds a file-backed store under dir, creating the directory if needed.
func NewFile(dir, key string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("changedesk/store: create %s: %w", dir, err)
	}
	return &File{path: filepath.Join(dir, fileName), key: key}, nil
}

// Path returns the location of the token document.
func (f *File) Path() string { return f.path }

func (f *File) Get(_ context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return "", false, err
	}
	tok, ok := doc[f.key]
	return tok, ok, nil
}

func (f *File) Set(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		// An unreadable document is replaced rather than blocking a login.
		doc = map[string]string{}
	}
	doc[f.key] = token
	return f.write(doc)
}

func (f *File) Remove(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		// Corrupt document: dropping it is the only way to clear the slot.
		if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("changedesk/store: remove %s: %w", f.path, rmErr)
		}
		return nil
	}
	if _, ok := doc[f.key]; !ok {
		return nil
	}
	delete(doc, f.key)
	if len(doc) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("changedesk/store: remove %s: %w", f.path, err)
		}
		return nil
	}
	return f.write(doc)
}

func (f *File) Close() error { return nil }

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("changedesk/store: read %s: %w", f.path, err)
	}
	doc := map[string]string{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("changedesk/store: decode %s: %w", f.path, err)
	}
	return doc, nil
}

// write replaces the document atomically.
func (f *File) write(doc map[string]string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("changedesk/store: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("changedesk/store: temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("changedesk/store: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("changedesk/store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("changedesk/store: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("changedesk/store: rename: %w", err)
	}
	return nil
}
