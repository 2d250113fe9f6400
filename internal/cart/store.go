// Package cart owns the persisted shopping cart. All reads and writes of the
// cart storage slot go through Store; every successful write is followed by
// a notification so other components can re-read.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/notify"
	"github.com/nikolayk812/storefront-cart/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

// DefaultKey is the storage slot the storefront has always used for the cart.
const DefaultKey = "electronic_cart"

var (
	// ErrNotPersisted marks a mutation whose result could not be written.
	// The cart returned alongside it is still the attempted state.
	ErrNotPersisted = errors.New("cart not persisted")
	// ErrInvalidInput marks a rejected mutation; the cart is unchanged.
	ErrInvalidInput = errors.New("invalid cart input")
)

type Store struct {
	storage  port.Storage
	notifier *notify.Notifier
	key      string
	currency currency.Unit
	logger   *zap.Logger
	metrics  *Metrics
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithCurrency sets the currency assumed for stored lines that carry none.
func WithCurrency(unit currency.Unit) Option {
	return func(s *Store) {
		s.currency = unit
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func NewStore(storage port.Storage, notifier *notify.Notifier, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is nil")
	}

	s := &Store{
		storage:  storage,
		notifier: notifier,
		key:      DefaultKey,
		currency: currency.RUB,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.key == "" {
		return nil, fmt.Errorf("key is empty")
	}
	if s.key != notifier.Key() {
		return nil, fmt.Errorf("notifier key[%s] does not match store key[%s]", notifier.Key(), s.key)
	}

	return s, nil
}

func (s *Store) Key() string {
	return s.key
}

// Load reads the cart. A missing slot is an empty cart, and so is a slot
// that cannot be read or parsed; the latter is logged and never returned.
func (s *Store) Load(ctx context.Context) domain.Cart {
	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("cart read failed, using empty cart", zap.String("key", s.key), zap.Error(err))
		s.metrics.loadFailed()
		return domain.Cart{}
	}
	if !ok {
		return domain.Cart{}
	}

	c, err := decodeCart(raw, s.currency)
	if err != nil {
		s.logger.Warn("cart data is corrupt, using empty cart", zap.String("key", s.key), zap.Error(err))
		s.metrics.loadFailed()
		return domain.Cart{}
	}

	return c
}

// Add puts delta units of product into the cart, increasing the quantity of
// an existing line instead of adding a second one.
func (s *Store) Add(ctx context.Context, product domain.Product, delta int) (domain.Cart, error) {
	current := s.Load(ctx)

	if product.ID.IsZero() {
		return current, fmt.Errorf("product id is empty: %w", ErrInvalidInput)
	}
	if delta < 1 {
		return current, fmt.Errorf("quantity delta[%d] is less than 1: %w", delta, ErrInvalidInput)
	}

	next := current.Clone()
	merged := false
	for i := range next.Items {
		if next.Items[i].ProductID == product.ID {
			next.Items[i].Quantity += delta
			merged = true
			break
		}
	}
	if !merged {
		next.Items = append(next.Items, domain.NewCartItem(product, delta))
	}

	return s.commit(ctx, opAdd, next)
}

// AddOne is the buy-click: one more unit of product.
func (s *Store) AddOne(ctx context.Context, product domain.Product) (domain.Cart, error) {
	return s.Add(ctx, product, 1)
}

// SetQuantity replaces the quantity of the line for id. Quantities below one
// are ignored, removal goes through Remove. Unknown ids are ignored too.
func (s *Store) SetQuantity(ctx context.Context, id domain.ProductID, quantity int) (domain.Cart, error) {
	current := s.Load(ctx)
	if quantity < 1 {
		return current, nil
	}

	next := current.Clone()
	changed := false
	for i := range next.Items {
		if next.Items[i].ProductID == id && next.Items[i].Quantity != quantity {
			next.Items[i].Quantity = quantity
			changed = true
			break
		}
	}
	if !changed {
		return current, nil
	}

	return s.commit(ctx, opSetQuantity, next)
}

// Remove drops the line for id. The cart is written and listeners notified
// even when id was not in the cart.
func (s *Store) Remove(ctx context.Context, id domain.ProductID) (domain.Cart, error) {
	current := s.Load(ctx)

	next := domain.Cart{}
	for _, item := range current.Items {
		if item.ProductID != id {
			next.Items = append(next.Items, item)
		}
	}

	return s.commit(ctx, opRemove, next)
}

// Clear deletes the storage slot itself rather than writing an empty cart.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Remove(ctx, s.key); err != nil {
		s.logger.Warn("cart clear failed", zap.String("key", s.key), zap.Error(err))
		s.metrics.persistFailed(opClear)
		return errors.Join(ErrNotPersisted, fmt.Errorf("storage.Remove: %w", err))
	}

	s.metrics.mutated(opClear)
	s.notifier.Publish()
	return nil
}

// Total is the sum of price times quantity over all lines.
func (s *Store) Total(c domain.Cart) decimal.Decimal {
	return c.Total()
}

func (s *Store) commit(ctx context.Context, op string, next domain.Cart) (domain.Cart, error) {
	raw, err := encodeCart(next)
	if err != nil {
		s.metrics.persistFailed(op)
		return next, errors.Join(ErrNotPersisted, fmt.Errorf("encodeCart: %w", err))
	}

	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		s.logger.Warn("cart write failed", zap.String("key", s.key), zap.String("op", op), zap.Error(err))
		s.metrics.persistFailed(op)
		return next, errors.Join(ErrNotPersisted, fmt.Errorf("storage.Set: %w", err))
	}

	s.metrics.mutated(op)
	s.notifier.Publish()
	return next, nil
}
