package cas

import (
	"context"
	"sync"
)

// InMemoryDatabase is the reference in-memory CAS database: a thread-safe
// map keyed by DataID. Objects are copied on the way in and out so callers
// cannot alias stored state.
type InMemoryDatabase struct {
	mu      sync.RWMutex
	objects map[DataID]Object
}

// NewInMemoryDatabase creates an empty in-memory database.
func NewInMemoryDatabase() *InMemoryDatabase {
	return &InMemoryDatabase{
		objects: make(map[DataID]Object),
	}
}

// Contains reports whether id is stored.
func (db *InMemoryDatabase) Contains(_ context.Context, id DataID) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.objects[id]
	return ok, nil
}

// Get returns the stored object, or nil if absent.
func (db *InMemoryDatabase) Get(_ context.Context, id DataID) (*Object, error) {
	db.mu.RLock()
	obj, ok := db.objects[id]
	db.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return copyObject(obj), nil
}

// Identify computes the canonical DataID without writing.
func (db *InMemoryDatabase) Identify(_ context.Context, refs []DataID, data []byte) (DataID, error) {
	return Identify(refs, data), nil
}

// Put stores (refs, data) idempotently and returns its DataID.
func (db *InMemoryDatabase) Put(_ context.Context, refs []DataID, data []byte) (DataID, error) {
	id := Identify(refs, data)
	db.store(id, refs, data)
	return id, nil
}

// PutID stores under a caller-known ID, verifying it is the true digest.
func (db *InMemoryDatabase) PutID(_ context.Context, id DataID, refs []DataID, data []byte) (DataID, error) {
	if err := verifyKnownID(id, refs, data); err != nil {
		return DataID{}, err
	}
	db.store(id, refs, data)
	return id, nil
}

// Features reports that IDs are preserved.
func (db *InMemoryDatabase) Features() Features {
	return Features{PreservesIDs: true}
}

// Close is a no-op.
func (db *InMemoryDatabase) Close() error {
	return nil
}

// Len returns the number of stored objects.
func (db *InMemoryDatabase) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.objects)
}

func (db *InMemoryDatabase) store(id DataID, refs []DataID, data []byte) {
	stored := Object{
		Refs: append([]DataID(nil), refs...),
		Data: append([]byte(nil), data...),
	}
	db.mu.Lock()
	db.objects[id] = stored
	db.mu.Unlock()
}

func copyObject(obj Object) *Object {
	return &Object{
		Refs: append([]DataID(nil), obj.Refs...),
		Data: append([]byte(nil), obj.Data...),
	}
}
