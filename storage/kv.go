package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// KVBackend stores each bucket in a JetStream key/value bucket.
type KVBackend struct {
	js jetstream.JetStream

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// NewKVBackend creates a backend and makes sure a bucket exists for every entity type.
func NewKVBackend(ctx context.Context, js jetstream.JetStream) (*KVBackend, error) {
	b := &KVBackend{
		js:      js,
		buckets: make(map[string]jetstream.KeyValue),
	}
	for _, t := range EntityTypes {
		if _, err := b.bucket(ctx, t.Bucket()); err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", t, err)
		}
	}
	return b, nil
}

func (b *KVBackend) bucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kv, ok := b.buckets[name]; ok {
		return kv, nil
	}
	kv, err := getOrCreateBucket(ctx, b.js, name)
	if err != nil {
		return nil, err
	}
	b.buckets[name] = kv
	return kv, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("TripSync %s storage", strings.ToLower(strings.TrimPrefix(name, "TRIPSYNC_"))),
		History:     5, // Keep last 5 revisions
	})
}

// Get returns the latest value for key.
func (b *KVBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	kv, err := b.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return entry.Value(), nil
}

// Create stores value only when key is not yet present.
func (b *KVBackend) Create(ctx context.Context, bucket, key string, value []byte) error {
	kv, err := b.bucket(ctx, bucket)
	if err != nil {
		return err
	}
	if _, err := kv.Create(ctx, key, value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrExists
		}
		return fmt.Errorf("create %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Put stores value, replacing any previous revision.
func (b *KVBackend) Put(ctx context.Context, bucket, key string, value []byte) error {
	kv, err := b.bucket(ctx, bucket)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Keys lists the live keys of a bucket.
func (b *KVBackend) Keys(ctx context.Context, bucket string) ([]string, error) {
	kv, err := b.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	lister, err := kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s keys: %w", bucket, err)
	}
	defer func() { _ = lister.Stop() }()

	keys := []string{}
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// Close is a no-op; the NATS connection is owned by the caller.
func (b *KVBackend) Close() error {
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}
