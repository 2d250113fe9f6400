// Package checkout holds the business rules that sit next to the cart:
// quantities are bounded by live stock and an order decrements stock for
// every line before the cart is cleared.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Shortage is a line asking for more units than are in stock.
type Shortage struct {
	ProductID domain.ProductID
	Name      string
	Requested int
	Available int
}

func (s Shortage) String() string {
	return fmt.Sprintf("%s: requested %d, available %d", s.Name, s.Requested, s.Available)
}

// ShortageError lists every line that cannot be fulfilled.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, s.String())
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *ShortageError) Unwrap() error {
	return ErrInsufficientStock
}

// Receipt summarizes a placed order.
type Receipt struct {
	Lines int
	Units int
	Total decimal.Decimal
}

type Service struct {
	catalog port.ProductCatalog
	store   *cart.Store
	logger  *zap.Logger
	limit   int
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConcurrency bounds the number of parallel catalog calls.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		s.limit = n
	}
}

func NewService(catalog port.ProductCatalog, store *cart.Store, opts ...Option) (*Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}

	s := &Service{
		catalog: catalog,
		store:   store,
		logger:  zap.NewNop(),
		limit:   8,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Stocks looks up live stock for every line. A failed lookup counts as no
// stock so the line cannot be ordered.
func (s *Service) Stocks(ctx context.Context, c domain.Cart) map[domain.ProductID]int {
	var (
		mu     sync.Mutex
		stocks = make(map[domain.ProductID]int, len(c.Items))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)

	for _, item := range c.Items {
		g.Go(func() error {
			available := 0
			p, err := s.catalog.GetProduct(gctx, item.ProductID)
			if err != nil {
				s.logger.Warn("stock lookup failed", zap.String("product_id", item.ProductID.String()), zap.Error(err))
			} else {
				available = p.Count
			}

			mu.Lock()
			stocks[item.ProductID] = available
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return stocks
}

// AddProduct is the buy-click: it adds one unit of the product unless the
// cart already holds every unit in stock.
func (s *Service) AddProduct(ctx context.Context, id domain.ProductID) (domain.Cart, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return s.store.Load(ctx), fmt.Errorf("catalog.GetProduct: %w", err)
	}

	current := s.store.Load(ctx)
	inCart := 0
	if item, ok := current.Find(id); ok {
		inCart = item.Quantity
	}
	if inCart+1 > p.Count {
		return current, &ShortageError{Shortages: []Shortage{{
			ProductID: p.ID,
			Name:      p.Name,
			Requested: inCart + 1,
			Available: p.Count,
		}}}
	}

	return s.store.AddOne(ctx, p)
}

// SetQuantity changes a line's quantity, clamped to live stock. A quantity
// below one is ignored like in the store.
func (s *Service) SetQuantity(ctx context.Context, id domain.ProductID, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return s.store.Load(ctx), nil
	}

	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return s.store.Load(ctx), fmt.Errorf("catalog.GetProduct: %w", err)
	}

	if quantity > p.Count {
		s.logger.Info("quantity clamped to stock",
			zap.String("product_id", id.String()),
			zap.Int("requested", quantity),
			zap.Int("available", p.Count))
		quantity = p.Count
	}

	return s.store.SetQuantity(ctx, id, quantity)
}

// Validate returns the lines that ask for more than is in stock.
func (s *Service) Validate(ctx context.Context, c domain.Cart) []Shortage {
	stocks := s.Stocks(ctx, c)

	var shortages []Shortage
	for _, item := range c.Items {
		if available := stocks[item.ProductID]; item.Quantity > available {
			shortages = append(shortages, Shortage{
				ProductID: item.ProductID,
				Name:      item.Name,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}

	return shortages
}

// Checkout places the order: stock is decremented for every line and the
// cart is cleared. The cart is kept when any decrement fails.
func (s *Service) Checkout(ctx context.Context) (Receipt, error) {
	c := s.store.Load(ctx)
	if c.Len() == 0 {
		return Receipt{}, ErrEmptyCart
	}

	if shortages := s.Validate(ctx, c); len(shortages) > 0 {
		return Receipt{}, &ShortageError{Shortages: shortages}
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)

	for _, item := range c.Items {
		g.Go(func() error {
			if err := s.catalog.ChangeCount(gctx, item.ProductID, -item.Quantity); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("catalog.ChangeCount[%s]: %w", item.ProductID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return Receipt{}, errors.Join(errs...)
	}

	receipt := Receipt{
		Lines: c.Len(),
		Units: c.Units(),
		Total: s.store.Total(c),
	}

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("order placed but cart not cleared", zap.Error(err))
		return receipt, fmt.Errorf("store.Clear: %w", err)
	}

	s.logger.Info("order placed",
		zap.Int("lines", receipt.Lines),
		zap.Int("units", receipt.Units),
		zap.String("total", receipt.Total.String()))

	return receipt, nil
}
