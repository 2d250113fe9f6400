package port

import (
	"context"

	"github.com/nikolayk812/storefront-cart/internal/domain"
)

// Storage is a string key-value slot store scoped to one origin.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// StorageWatcher delivers changes made by other handles of the same origin.
// Watch blocks until ctx is done.
type StorageWatcher interface {
	Watch(ctx context.Context, fn func(domain.StorageEvent)) error
}
