// Package notify fans out "cart changed" signals to every interested
// listener. Same-context changes are delivered synchronously by Publish;
// changes made through other handles of the storage origin arrive through a
// port.StorageWatcher passed to Listen.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/port"
	"go.uber.org/zap"
)

type Notifier struct {
	key    string
	logger *zap.Logger

	mu   sync.Mutex
	subs []*subscription
}

type subscription struct {
	fn     func()
	active atomic.Bool
}

type Option func(*Notifier)

func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New returns a notifier for the storage slot named key.
func New(key string, opts ...Option) *Notifier {
	n := &Notifier{
		key:    key,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Key() string {
	return n.key
}

// Subscribe registers fn and returns the function that removes it.
// Unsubscribing is idempotent and stops delivery immediately, including
// during a Publish that is already running.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()

	return func() {
		if !sub.active.CompareAndSwap(true, false) {
			return
		}

		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s == sub {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish calls every active listener in subscription order before returning.
func (n *Notifier) Publish() {
	n.mu.Lock()
	subs := append([]*subscription(nil), n.subs...)
	n.mu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		sub.fn()
	}
}

// Len returns the number of active listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Listen forwards changes of the cart key reported by watcher to Publish.
// Events for other keys are ignored. It blocks until ctx is done.
func (n *Notifier) Listen(ctx context.Context, watcher port.StorageWatcher) error {
	err := watcher.Watch(ctx, func(e domain.StorageEvent) {
		if e.Key != n.key {
			return
		}
		n.logger.Debug("cart changed in another context", zap.String("key", e.Key), zap.Bool("removed", e.Removed()))
		n.Publish()
	})
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("watcher.Watch: %w", err)
}
