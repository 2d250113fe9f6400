// Package memstore keeps storage origins in process memory. Every handle
// opened on an origin sees the same data and, like browser tabs, is told
// about changes made through the other handles but not about its own.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/nikolayk812/storefront-cart/internal/domain"
)

// ErrQuotaExceeded is returned by Set when the origin would grow past its quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

type Origin struct {
	quota int

	mu       sync.Mutex
	data     map[string]string
	watchers map[*watcher]*Handle
}

type OriginOption func(*Origin)

// WithQuota limits the total size of keys and values in bytes.
func WithQuota(bytes int) OriginOption {
	return func(o *Origin) {
		o.quota = bytes
	}
}

func NewOrigin(opts ...OriginOption) *Origin {
	o := &Origin{
		data:     make(map[string]string),
		watchers: make(map[*watcher]*Handle),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open returns a new handle, the equivalent of one browsing context.
func (o *Origin) Open() *Handle {
	return &Handle{origin: o}
}

type Handle struct {
	origin *Origin
}

func (h *Handle) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	h.origin.mu.Lock()
	defer h.origin.mu.Unlock()

	value, ok := h.origin.data[key]
	return value, ok, nil
}

func (h *Handle) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o := h.origin
	o.mu.Lock()
	defer o.mu.Unlock()

	old, existed := o.data[key]
	if o.quota > 0 {
		size := o.sizeLocked() + len(value)
		if existed {
			size -= len(old)
		} else {
			size += len(key)
		}
		if size > o.quota {
			return ErrQuotaExceeded
		}
	}

	o.data[key] = value

	event := domain.StorageEvent{Key: key, NewValue: &value}
	if existed {
		event.OldValue = &old
	}
	o.broadcastLocked(h, event)

	return nil
}

func (h *Handle) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o := h.origin
	o.mu.Lock()
	defer o.mu.Unlock()

	old, existed := o.data[key]
	if !existed {
		return nil
	}
	delete(o.data, key)
	o.broadcastLocked(h, domain.StorageEvent{Key: key, OldValue: &old})

	return nil
}

// Watch delivers changes made through other handles of the origin, in the
// order they happened, until ctx is done.
func (h *Handle) Watch(ctx context.Context, fn func(domain.StorageEvent)) error {
	w := &watcher{signal: make(chan struct{}, 1)}

	o := h.origin
	o.mu.Lock()
	o.watchers[w] = h
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.watchers, w)
		o.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.signal:
			for _, e := range w.drain() {
				fn(e)
			}
		}
	}
}

func (o *Origin) sizeLocked() int {
	var n int
	for k, v := range o.data {
		n += len(k) + len(v)
	}
	return n
}

func (o *Origin) broadcastLocked(source *Handle, e domain.StorageEvent) {
	for w, owner := range o.watchers {
		if owner == source {
			continue
		}
		w.push(e)
	}
}

type watcher struct {
	mu     sync.Mutex
	queue  []domain.StorageEvent
	signal chan struct{}
}

func (w *watcher) push(e domain.StorageEvent) {
	w.mu.Lock()
	w.queue = append(w.queue, e)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) drain() []domain.StorageEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	events := w.queue
	w.queue = nil
	return events
}
