package port

import (
	"context"

	"github.com/nikolayk812/storefront-cart/internal/domain"
)

//go:generate mockgen -source=catalog_port.go -destination=mocks/catalog_mock.go -package=mocks ProductCatalog

type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error)
	// ChangeCount adjusts available stock by a signed delta.
	ChangeCount(ctx context.Context, id domain.ProductID, delta int) error
}
