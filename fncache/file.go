package fncache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/loom/cas"
)

// FileCache is the reference file-backed function cache. Each entry is a
// file function-cache/<version>/<fingerprint> under the root directory,
// holding the DataID in textual form. Fingerprints are hex and versions are
// caller-chosen short strings, both safe as path components; Update rejects
// anything that is not.
type FileCache struct {
	dir string
}

// OpenFileCache creates or opens a file-backed cache rooted at dir.
func OpenFileCache(dir string) (*FileCache, error) {
	cacheDir := filepath.Join(dir, "function-cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("open file cache: %w", err)
	}
	return &FileCache{dir: cacheDir}, nil
}

// Get returns the recorded DataID, or ok=false on a miss. An entry that
// fails to parse is treated as a miss: the cache is advisory and a rewrite
// by a future Update is cheaper than failing the build.
func (c *FileCache) Get(_ context.Context, fingerprint string, props Props) (cas.DataID, bool, error) {
	path, err := c.path(fingerprint, props)
	if err != nil {
		return cas.DataID{}, false, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cas.DataID{}, false, nil
	}
	if err != nil {
		return cas.DataID{}, false, fmt.Errorf("read cache entry %s: %w", fingerprint, err)
	}

	id, err := cas.ParseDataID(strings.TrimSpace(string(raw)))
	if err != nil {
		return cas.DataID{}, false, nil
	}
	return id, true, nil
}

// Update records id for fingerprint, overwriting any previous entry.
func (c *FileCache) Update(_ context.Context, fingerprint string, props Props, id cas.DataID) error {
	path, err := c.path(fingerprint, props)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("update cache entry %s: %w", fingerprint, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".update-*")
	if err != nil {
		return fmt.Errorf("update cache entry %s: %w", fingerprint, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(id.String() + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("update cache entry %s: %w", fingerprint, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("update cache entry %s: %w", fingerprint, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("update cache entry %s: %w", fingerprint, err)
	}
	return nil
}

// Close is a no-op.
func (c *FileCache) Close() error {
	return nil
}

func (c *FileCache) path(fingerprint string, props Props) (string, error) {
	version := props.Version
	if version == "" {
		version = "v0"
	}
	for _, part := range []string{version, fingerprint} {
		if part == "" || strings.ContainsAny(part, "/\\") || strings.HasPrefix(part, ".") {
			return "", fmt.Errorf("cache entry %q/%q: not path-safe", version, fingerprint)
		}
	}
	return filepath.Join(c.dir, version, fingerprint), nil
}
