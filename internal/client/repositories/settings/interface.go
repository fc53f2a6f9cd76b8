package settings

import (
	"context"
)

// Repository is a small durable key/value store for client state that does
// not belong in the entries table: auth tokens, the device owner id, and the
// serialized pending-upload queue.
type Repository interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error
}
