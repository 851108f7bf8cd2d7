package storage

import "context"

// Backend is a bucketed key/value store. Keys returns an empty slice for an
// empty or missing bucket.
type Backend interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Create(ctx context.Context, bucket, key string, value []byte) error
	Put(ctx context.Context, bucket, key string, value []byte) error
	Keys(ctx context.Context, bucket string) ([]string, error)
	Close() error
}
