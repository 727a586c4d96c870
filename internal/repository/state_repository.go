package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/okamoto/hr-dashboard/internal/database"
	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

// ErrCorruptState is returned when the stored document can't be decoded into
// the current shape. Callers fall back to an empty state.
var ErrCorruptState = errors.New("persisted state has unexpected shape")

// KV is the subset of the key-value cache the repository needs
type KV interface {
	Get(ctx context.Context, key string) (database.Entry, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// StateRepository persists the record store under a single fixed key
type StateRepository struct {
	kv     KV
	key    string
	logger *zap.Logger

	// saveMu orders revisioned writes; saved is the newest revision written
	saveMu sync.Mutex
	saved  uint64
}

func NewStateRepository(kv KV, key string, logger *zap.Logger) *StateRepository {
	return &StateRepository{kv: kv, key: key, logger: logger}
}

// Key returns the storage key
func (r *StateRepository) Key() string {
	return r.key
}

// Load reads and decodes the persisted state. found is false when nothing was
// stored yet; a shape mismatch returns ErrCorruptState.
func (r *StateRepository) Load(ctx context.Context) (state models.PersistedStore, found bool, err error) {
	entry, found, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return models.PersistedStore{}, false, fmt.Errorf("failed to load state: %w", err)
	}
	if !found {
		return models.PersistedStore{}, false, nil
	}

	state, err = Decode(entry.Value)
	if err != nil {
		return models.PersistedStore{}, true, err
	}

	r.logger.Debug("loaded persisted state",
		zap.Int("employees", len(state.Employees)),
		zap.Int("bookmarks", len(state.Bookmarks)))

	return state, true, nil
}

// Save writes an already encoded document
func (r *StateRepository) Save(ctx context.Context, payload []byte) error {
	if err := r.kv.Put(ctx, r.key, payload); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// SaveRevision writes payload unless a newer revision has already been
// written. It reports whether the payload was stored. Revisions are only
// compared within the lifetime of the repository.
func (r *StateRepository) SaveRevision(ctx context.Context, revision uint64, payload []byte) (bool, error) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if revision < r.saved {
		r.logger.Debug("skipping outdated snapshot",
			zap.Uint64("revision", revision),
			zap.Uint64("saved_revision", r.saved))
		return false, nil
	}

	if err := r.Save(ctx, payload); err != nil {
		return false, err
	}
	r.saved = revision
	return true, nil
}

// SavedRevision returns the newest revision written through SaveRevision
func (r *StateRepository) SavedRevision() uint64 {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return r.saved
}

// Clear removes the persisted document
func (r *StateRepository) Clear(ctx context.Context) error {
	if err := r.kv.Delete(ctx, r.key); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}

// Encode serializes the store contents as {"state": {...}}
func Encode(state models.PersistedStore) ([]byte, error) {
	if state.Employees == nil {
		state.Employees = []models.Employee{}
	}
	if state.Bookmarks == nil {
		state.Bookmarks = []int{}
	}

	data, err := json.Marshal(models.PersistedState{State: state})
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// Decode parses a stored document. Unknown fields are rejected so that a
// format change is detected instead of half-read.
func Decode(data []byte) (models.PersistedStore, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc models.PersistedState
	if err := dec.Decode(&doc); err != nil {
		return models.PersistedStore{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	return doc.State, nil
}
