// Package storage persists trips, member preferences and generated plans over
// a bucketed key/value Backend: NATS JetStream KV or badger.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// identified is implemented by records that carry their own key.
type identified interface {
	SetID(id string)
}

// Store provides typed entity storage over a Backend.
type Store struct {
	backend Backend
}

// NewStore creates a Store over backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Get loads the entity stored under id into out.
func (s *Store) Get(ctx context.Context, t EntityType, id string, out any) error {
	data, err := s.backend.Get(ctx, t.Bucket(), id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", t, err)
	}
	return nil
}

// Query returns every entity of type t accepted by pred, ordered by key.
// A nil pred accepts everything. Entries that disappear or fail to load
// between listing and reading are skipped.
func (s *Store) Query(ctx context.Context, t EntityType, pred func(json.RawMessage) bool) ([]json.RawMessage, error) {
	keys, err := s.backend.Keys(ctx, t.Bucket())
	if err != nil {
		return nil, fmt.Errorf("list %s keys: %w", t, err)
	}
	sort.Strings(keys)

	out := make([]json.RawMessage, 0, len(keys))
	for _, key := range keys {
		data, err := s.backend.Get(ctx, t.Bucket(), key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		if !json.Valid(data) {
			continue
		}
		raw := json.RawMessage(data)
		if pred == nil || pred(raw) {
			out = append(out, raw)
		}
	}
	return out, nil
}

// Insert stores record under a freshly generated id. Records implementing
// SetID receive the id before they are marshaled.
func (s *Store) Insert(ctx context.Context, t EntityType, record any) (EntityID, error) {
	id := NewEntityID(t)
	if r, ok := record.(identified); ok {
		r.SetID(id.ID)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return EntityID{}, fmt.Errorf("marshal %s: %w", t, err)
	}
	if err := s.backend.Create(ctx, t.Bucket(), id.ID, data); err != nil {
		return EntityID{}, fmt.Errorf("store %s: %w", t, err)
	}
	return id, nil
}

// Upsert stores record under key, replacing any previous value.
func (s *Store) Upsert(ctx context.Context, t EntityType, key string, record any) (EntityID, error) {
	if key == "" {
		return EntityID{}, fmt.Errorf("upsert %s: empty key", t)
	}
	if r, ok := record.(identified); ok {
		r.SetID(key)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return EntityID{}, fmt.Errorf("marshal %s: %w", t, err)
	}
	if err := s.backend.Put(ctx, t.Bucket(), key, data); err != nil {
		return EntityID{}, fmt.Errorf("store %s: %w", t, err)
	}
	return EntityID{Type: t, ID: key}, nil
}

// fieldEquals returns a Query predicate matching a top-level string field.
func fieldEquals(field, value string) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			return false
		}
		var got string
		if err := json.Unmarshal(doc[field], &got); err != nil {
			return false
		}
		return got == value
	}
}
