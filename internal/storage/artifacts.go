package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// ArtifactPrefix is the key namespace for submitted plans.
const ArtifactPrefix = "iac-scans"

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

// ArtifactKey returns the storage key for a scan's plan document.
func ArtifactKey(scanID string) string {
	return ArtifactPrefix + "/" + unsafeKeyChars.ReplaceAllString(scanID, "_") + ".json"
}

// ArtifactStore keeps submitted plan documents on an afero filesystem.
type ArtifactStore struct {
	fs   afero.Fs
	root string
}

// NewArtifactStore creates the root directory on fs if needed.
func NewArtifactStore(fs afero.Fs, root string) (*ArtifactStore, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact dir %s: %w", root, err)
	}
	return &ArtifactStore{fs: fs, root: root}, nil
}

// NewOSArtifactStore is NewArtifactStore on the local filesystem.
func NewOSArtifactStore(root string) (*ArtifactStore, error) {
	return NewArtifactStore(afero.NewOsFs(), root)
}

// Put writes data under key, replacing any previous artifact.
func (a *ArtifactStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := a.resolve(key)
	if err != nil {
		return err
	}
	if err := a.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	if err := afero.WriteFile(a.fs, p, data, 0644); err != nil {
		return fmt.Errorf("writing artifact %s: %w", key, err)
	}
	return nil
}

// Get reads the artifact stored under key.
func (a *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := a.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(a.fs, p)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return data, nil
}

// resolve maps a slash-separated key onto a path under root, rejecting keys
// that would escape it.
func (a *ArtifactStore) resolve(key string) (string, error) {
	if key == "" {
		return "", errors.New("artifact key is empty")
	}
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(a.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
