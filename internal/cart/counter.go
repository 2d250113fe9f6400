package cart

import (
	"context"
	"sync/atomic"

	"github.com/nikolayk812/storefront-cart/internal/notify"
)

// ItemCounter is the header badge read model: the number of distinct lines
// in the cart, kept current while active.
type ItemCounter struct {
	store    *Store
	notifier *notify.Notifier
	value    atomic.Int64
	onChange func(int)
}

func NewItemCounter(store *Store, notifier *notify.Notifier) *ItemCounter {
	return &ItemCounter{
		store:    store,
		notifier: notifier,
	}
}

// OnChange registers fn to be called with the count after every recompute.
// It must be set before Activate.
func (c *ItemCounter) OnChange(fn func(int)) {
	c.onChange = fn
}

// Activate computes the count and keeps it current until the returned
// function is called.
func (c *ItemCounter) Activate(ctx context.Context) (deactivate func()) {
	unsubscribe := c.notifier.Subscribe(func() { c.refresh(ctx) })
	c.refresh(ctx)
	return unsubscribe
}

func (c *ItemCounter) Value() int {
	return int(c.value.Load())
}

// refresh keeps the last count once ctx is done; loading with a dead
// context would read as an empty cart.
func (c *ItemCounter) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	n := c.store.Load(ctx).Len()
	c.value.Store(int64(n))
	if c.onChange != nil {
		c.onChange(n)
	}
}
