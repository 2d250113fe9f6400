// Package productapi talks to the storefront product service.
package productapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

var ErrNotFound = errors.New("product not found")

// StatusError is a non-success code reported by the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("product api: code %d: %s", e.Code, e.Message)
}

type client struct {
	baseURL  *url.URL
	http     *http.Client
	currency currency.Unit
	logger   *zap.Logger
}

type Option func(*client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.http.Timeout = d
	}
}

// WithCurrency sets the currency of prices returned by the service.
func WithCurrency(unit currency.Unit) Option {
	return func(c *client) {
		c.currency = unit
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL string, opts ...Option) (port.ProductCatalog, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is empty")
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("url.Parse: %w", err)
	}

	c := &client{
		baseURL:  u,
		http:     &http.Client{Timeout: 10 * time.Second},
		currency: currency.RUB,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/product", nil, &resp); err != nil {
		return nil, fmt.Errorf("c.do: %w", err)
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(resp.Products))
	for _, p := range resp.Products {
		products = append(products, mapProductToDomain(p, c.currency))
	}

	return products, nil
}

func (c *client) GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	if id.IsZero() {
		return domain.Product{}, fmt.Errorf("product id is empty")
	}

	var resp productResponse
	if err := c.do(ctx, http.MethodGet, "/product/"+url.PathEscape(id.String()), nil, &resp); err != nil {
		return domain.Product{}, fmt.Errorf("c.do: %w", err)
	}
	if err := resp.err(); err != nil {
		return domain.Product{}, err
	}

	return mapProductToDomain(resp.productDTO, c.currency), nil
}

func (c *client) ChangeCount(ctx context.Context, id domain.ProductID, delta int) error {
	n, err := id.Int()
	if err != nil {
		return fmt.Errorf("id.Int: %w", err)
	}

	var resp envelope
	if err := c.do(ctx, http.MethodPut, "/product/change", changeCountRequest{ID: n, Count: delta}, &resp); err != nil {
		return fmt.Errorf("c.do: %w", err)
	}

	return resp.err()
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http.Do: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("product api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("json.Decode: %w", err)
	}

	return nil
}

// The service reports failures inside a 200 response body, so every
// payload embeds the code/message envelope.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e envelope) err() error {
	switch {
	case e.Code == 0 || (e.Code >= 200 && e.Code < 300):
		return nil
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Code: e.Code, Message: e.Message}
	}
}

type productDTO struct {
	ID          domain.ProductID `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  string           `json:"parameters"`
	Count       int              `json:"count"`
	Price       decimal.Decimal  `json:"price"`
	Images      []string         `json:"images"`
}

type productResponse struct {
	envelope
	productDTO
}

type listResponse struct {
	envelope
	Products []productDTO `json:"Products"`
}

type changeCountRequest struct {
	ID    int
	Count int
}

func mapProductToDomain(p productDTO, unit currency.Unit) domain.Product {
	return domain.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Parameters:  p.Parameters,
		Price:       domain.Money{Amount: p.Price, Currency: unit},
		Count:       p.Count,
		Images:      p.Images,
	}
}

// ImageURL maps a stored image filename to its public object storage URL.
func ImageURL(baseURL, filename string) string {
	if filename == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(filename)
}

// ParseID accepts the id forms used on the command line and in links.
func ParseID(s string) (domain.ProductID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("product id is empty")
	}
	if _, err := strconv.Atoi(s); err != nil {
		return "", fmt.Errorf("product id[%s] is not numeric", s)
	}
	return domain.ProductID(s), nil
}
