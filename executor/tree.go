package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/loom/cas"
)

// Directory trees are stored as CAS objects whose data is a JSON listing of
// entries sorted by name and whose refs are the child object IDs in the
// same order. Files are leaf objects holding raw content. Equal trees
// digest equally because the listing order is canonical.

type treeEntry struct {
	Name string       `json:"name"`
	Type ArtifactType `json:"type"`
}

// putFile stores a file's content and returns its DataID.
func putFile(ctx context.Context, db cas.Database, path string) (cas.DataID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cas.DataID{}, fmt.Errorf("store file %s: %w", path, err)
	}
	id, err := db.Put(ctx, nil, data)
	if err != nil {
		return cas.DataID{}, fmt.Errorf("store file %s: %w", path, err)
	}
	return id, nil
}

// putTree stores a directory recursively and returns the root tree ID.
func putTree(ctx context.Context, db cas.Database, dir string) (cas.DataID, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return cas.DataID{}, fmt.Errorf("store tree %s: %w", dir, err)
	}
	sort.Slice(dirents, func(i, j int) bool { return dirents[i].Name() < dirents[j].Name() })

	entries := make([]treeEntry, 0, len(dirents))
	refs := make([]cas.DataID, 0, len(dirents))
	for _, dirent := range dirents {
		child := filepath.Join(dir, dirent.Name())
		var id cas.DataID
		var kind ArtifactType
		if dirent.IsDir() {
			kind = ArtifactDirectory
			id, err = putTree(ctx, db, child)
		} else {
			kind = ArtifactFile
			id, err = putFile(ctx, db, child)
		}
		if err != nil {
			return cas.DataID{}, err
		}
		entries = append(entries, treeEntry{Name: dirent.Name(), Type: kind})
		refs = append(refs, id)
	}

	listing, err := json.Marshal(entries)
	if err != nil {
		return cas.DataID{}, fmt.Errorf("store tree %s: %w", dir, err)
	}
	id, err := db.Put(ctx, refs, listing)
	if err != nil {
		return cas.DataID{}, fmt.Errorf("store tree %s: %w", dir, err)
	}
	return id, nil
}

// materializeFile writes the object's data to dst.
func materializeFile(ctx context.Context, db cas.Database, id cas.DataID, dst string) error {
	obj, err := db.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", dst, err)
	}
	if obj == nil {
		return fmt.Errorf("materialize %s: %w", dst, &cas.MissingError{ID: id})
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("materialize %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, obj.Data, 0o644); err != nil {
		return fmt.Errorf("materialize %s: %w", dst, err)
	}
	return nil
}

// materializeTree recreates a stored directory tree under dst.
func materializeTree(ctx context.Context, db cas.Database, id cas.DataID, dst string) error {
	obj, err := db.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("materialize %s: %w", dst, err)
	}
	if obj == nil {
		return fmt.Errorf("materialize %s: %w", dst, &cas.MissingError{ID: id})
	}

	var entries []treeEntry
	if err := json.Unmarshal(obj.Data, &entries); err != nil {
		return fmt.Errorf("materialize %s: decode listing: %w", dst, err)
	}
	if len(entries) != len(obj.Refs) {
		return fmt.Errorf("materialize %s: %d entries but %d refs", dst, len(entries), len(obj.Refs))
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("materialize %s: %w", dst, err)
	}

	for i, entry := range entries {
		child := filepath.Join(dst, entry.Name)
		switch entry.Type {
		case ArtifactDirectory:
			err = materializeTree(ctx, db, obj.Refs[i], child)
		default:
			err = materializeFile(ctx, db, obj.Refs[i], child)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
