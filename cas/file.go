package cas

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileDatabase is the reference file-backed CAS database. Each object lives
// in its own file under <root>/cas/, named by the base64url form of its full
// DataID bytes; refs are serialized in an inline JSON header beside the
// payload. Writes go through a temp file and rename so a crashed put never
// leaves a half-written object under a valid name.
type FileDatabase struct {
	dir string
}

// fileObject is the on-disk form of an object.
type fileObject struct {
	Refs []DataID `json:"refs,omitempty"`
	Data []byte   `json:"data,omitempty"`
}

// OpenFileDatabase creates or opens a file-backed database rooted at dir.
func OpenFileDatabase(dir string) (*FileDatabase, error) {
	casDir := filepath.Join(dir, "cas")
	if err := os.MkdirAll(casDir, 0o755); err != nil {
		return nil, fmt.Errorf("open file cas: %w", err)
	}
	return &FileDatabase{dir: casDir}, nil
}

// Contains reports whether id is stored.
func (db *FileDatabase) Contains(_ context.Context, id DataID) (bool, error) {
	_, err := os.Stat(db.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", id, err)
}

// Get returns the stored object, or nil if absent.
func (db *FileDatabase) Get(_ context.Context, id DataID) (*Object, error) {
	raw, err := os.ReadFile(db.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}

	var stored fileObject
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &Object{Refs: stored.Refs, Data: stored.Data}, nil
}

// Identify computes the canonical DataID without writing.
func (db *FileDatabase) Identify(_ context.Context, refs []DataID, data []byte) (DataID, error) {
	return Identify(refs, data), nil
}

// Put stores (refs, data) idempotently and returns its DataID.
func (db *FileDatabase) Put(_ context.Context, refs []DataID, data []byte) (DataID, error) {
	id := Identify(refs, data)
	if err := db.write(id, refs, data); err != nil {
		return DataID{}, err
	}
	return id, nil
}

// PutID stores under a caller-known ID, verifying it is the true digest.
func (db *FileDatabase) PutID(_ context.Context, id DataID, refs []DataID, data []byte) (DataID, error) {
	if err := verifyKnownID(id, refs, data); err != nil {
		return DataID{}, err
	}
	if err := db.write(id, refs, data); err != nil {
		return DataID{}, err
	}
	return id, nil
}

// Features reports that IDs are preserved.
func (db *FileDatabase) Features() Features {
	return Features{PreservesIDs: true}
}

// Close is a no-op; every operation opens and closes its own file.
func (db *FileDatabase) Close() error {
	return nil
}

func (db *FileDatabase) path(id DataID) string {
	return filepath.Join(db.dir, base64.URLEncoding.EncodeToString(id.Bytes()))
}

func (db *FileDatabase) write(id DataID, refs []DataID, data []byte) error {
	encoded, err := json.Marshal(fileObject{Refs: refs, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	dst := db.path(id)
	tmp, err := os.CreateTemp(db.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}
