package blob

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FSStore writes objects to a directory on an afero filesystem.
type FSStore struct {
	fs      afero.Fs
	root    string
	baseURL string
}

// NewFSStore stores objects under root. Returned URLs are baseURL/key, or file:// paths
// when baseURL is empty.
func NewFSStore(fs afero.Fs, root, baseURL string) *FSStore {
	return &FSStore{fs: fs, root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Put writes data to root/key.
func (s *FSStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return "file://" + filepath.ToSlash(path), nil
}
