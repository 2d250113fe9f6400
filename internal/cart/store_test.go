package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/notify"
	"github.com/nikolayk812/storefront-cart/internal/storage/memstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/currency"
)

type storeSuite struct {
	suite.Suite

	storage  *memstore.Handle
	notifier *notify.Notifier
	store    *cart.Store
	metrics  *cart.Metrics
	logs     *observer.ObservedLogs
	notified int
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(storeSuite))
}

// before each test
func (suite *storeSuite) SetupTest() {
	core, logs := observer.New(zapcore.WarnLevel)
	suite.logs = logs

	suite.storage = memstore.NewOrigin().Open()
	suite.notifier = notify.New(cart.DefaultKey)
	suite.metrics = cart.NewMetrics(prometheus.NewRegistry())

	var err error
	suite.store, err = cart.NewStore(suite.storage, suite.notifier,
		cart.WithLogger(zap.New(core)),
		cart.WithMetrics(suite.metrics),
	)
	suite.Require().NoError(err)

	suite.notified = 0
	suite.notifier.Subscribe(func() { suite.notified++ })
}

func (suite *storeSuite) TestLoad() {
	tests := []struct {
		name     string
		stored   *string
		want     domain.Cart
		wantWarn bool
	}{
		{
			name: "absent slot: empty",
			want: domain.Cart{},
		},
		{
			name:     "corrupt slot: empty",
			stored:   ptr("{not json"),
			want:     domain.Cart{},
			wantWarn: true,
		},
		{
			name:     "wrong shape: empty",
			stored:   ptr(`{"id":1}`),
			want:     domain.Cart{},
			wantWarn: true,
		},
		{
			name:     "unknown currency: empty",
			stored:   ptr(`[{"id":1,"price":10,"currency":"ZZZ","quantity":1}]`),
			want:     domain.Cart{},
			wantWarn: true,
		},
		{
			name:   "legacy slot without currency: ok",
			stored: ptr(`[{"id":7,"name":"Phone","price":79999,"images":["p.jpg"],"parameters":"Категория=Смартфоны","count":3,"quantity":2}]`),
			want: domain.Cart{Items: []domain.CartItem{{
				ProductID:  "7",
				Name:       "Phone",
				Price:      rub(79999),
				Images:     []string{"p.jpg"},
				Parameters: "Категория=Смартфоны",
				Quantity:   2,
			}}},
		},
		{
			name:   "invariants restored on foreign data",
			stored: ptr(`[{"id":1,"price":"5","quantity":0},{"id":2,"price":1,"quantity":1},{"id":1,"price":5,"quantity":3},{"price":9,"quantity":1}]`),
			want: domain.Cart{Items: []domain.CartItem{
				{ProductID: "1", Price: rub(5), Quantity: 4},
				{ProductID: "2", Price: rub(1), Quantity: 1},
			}},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()
			suite.SetupTest()

			if tt.stored != nil {
				require.NoError(t, suite.storage.Set(ctx, cart.DefaultKey, *tt.stored))
			}

			got := suite.store.Load(ctx)
			assertCart(t, tt.want, got)

			if tt.wantWarn {
				assert.Equal(t, 1, suite.logs.FilterMessage("cart data is corrupt, using empty cart").Len())
				assert.Equal(t, 1.0, testutil.ToFloat64(suite.metrics.LoadFailures))
			} else {
				assert.Zero(t, suite.logs.Len())
			}
		})
	}
}

func (suite *storeSuite) TestLoad_StorageError() {
	t := suite.T()

	store, err := cart.NewStore(failingStorage{getErr: errors.New("disk gone")}, suite.notifier)
	require.NoError(t, err)

	assertCart(t, domain.Cart{}, store.Load(t.Context()))
}

func (suite *storeSuite) TestAdd() {
	t := suite.T()
	ctx := t.Context()

	phone := randomProduct()
	case_ := randomProduct()

	deltas := []int{1, 2, 1, 5}
	for _, d := range deltas {
		_, err := suite.store.Add(ctx, phone, d)
		require.NoError(t, err)
	}

	got, err := suite.store.AddOne(ctx, case_)
	require.NoError(t, err)

	want := domain.Cart{Items: []domain.CartItem{
		domain.NewCartItem(phone, 9),
		domain.NewCartItem(case_, 1),
	}}
	assertCart(t, want, got)
	assertCart(t, want, suite.store.Load(ctx))

	assert.Equal(t, len(deltas)+1, suite.notified)
	assert.Equal(t, 5.0, testutil.ToFloat64(suite.metrics.Mutations.WithLabelValues("add")))
}

func (suite *storeSuite) TestAdd_Rejected() {
	tests := []struct {
		name      string
		product   domain.Product
		delta     int
		wantError string
	}{
		{
			name:      "empty product id",
			product:   domain.Product{Name: "no id"},
			delta:     1,
			wantError: "product id is empty: invalid cart input",
		},
		{
			name:      "zero delta",
			product:   randomProduct(),
			delta:     0,
			wantError: "quantity delta[0] is less than 1: invalid cart input",
		},
		{
			name:      "negative delta",
			product:   randomProduct(),
			delta:     -3,
			wantError: "quantity delta[-3] is less than 1: invalid cart input",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()
			suite.SetupTest()

			existing := randomProduct()
			_, err := suite.store.AddOne(ctx, existing)
			require.NoError(t, err)
			suite.notified = 0

			got, err := suite.store.Add(ctx, tt.product, tt.delta)
			require.EqualError(t, err, tt.wantError)
			assert.ErrorIs(t, err, cart.ErrInvalidInput)

			assertCart(t, domain.Cart{Items: []domain.CartItem{domain.NewCartItem(existing, 1)}}, got)
			assert.Zero(t, suite.notified)
		})
	}
}

func (suite *storeSuite) TestSetQuantity() {
	tests := []struct {
		name         string
		id           func(p domain.Product) domain.ProductID
		quantity     int
		wantQuantity int
		wantNotified bool
	}{
		{
			name:         "replace quantity",
			id:           func(p domain.Product) domain.ProductID { return p.ID },
			quantity:     4,
			wantQuantity: 4,
			wantNotified: true,
		},
		{
			name:         "below one is ignored",
			id:           func(p domain.Product) domain.ProductID { return p.ID },
			quantity:     0,
			wantQuantity: 2,
		},
		{
			name:         "same quantity is ignored",
			id:           func(p domain.Product) domain.ProductID { return p.ID },
			quantity:     2,
			wantQuantity: 2,
		},
		{
			name:         "unknown id is ignored",
			id:           func(domain.Product) domain.ProductID { return "missing" },
			quantity:     7,
			wantQuantity: 2,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()
			suite.SetupTest()

			product := randomProduct()
			_, err := suite.store.Add(ctx, product, 2)
			require.NoError(t, err)
			suite.notified = 0

			got, err := suite.store.SetQuantity(ctx, tt.id(product), tt.quantity)
			require.NoError(t, err)

			require.Len(t, got.Items, 1)
			assert.Equal(t, tt.wantQuantity, got.Items[0].Quantity)
			assert.Equal(t, tt.wantQuantity, suite.store.Load(ctx).Items[0].Quantity)
			assert.Equal(t, tt.wantNotified, suite.notified == 1)
		})
	}
}

func (suite *storeSuite) TestRemove_Idempotent() {
	t := suite.T()
	ctx := t.Context()

	a, b := randomProduct(), randomProduct()
	_, err := suite.store.AddOne(ctx, a)
	require.NoError(t, err)
	_, err = suite.store.AddOne(ctx, b)
	require.NoError(t, err)
	suite.notified = 0

	first, err := suite.store.Remove(ctx, a.ID)
	require.NoError(t, err)
	second, err := suite.store.Remove(ctx, a.ID)
	require.NoError(t, err)

	want := domain.Cart{Items: []domain.CartItem{domain.NewCartItem(b, 1)}}
	assertCart(t, want, first)
	assertCart(t, want, second)
	assert.Equal(t, 2, suite.notified, "remove always notifies")
}

func (suite *storeSuite) TestAdd_StoredFormat() {
	t := suite.T()
	ctx := t.Context()

	p := domain.Product{
		ID:         "15",
		Name:       "Phone",
		Parameters: "Категория=Смартфоны",
		Price:      domain.Money{Amount: decimal.RequireFromString("79999.50"), Currency: currency.RUB},
		Images:     []string{"p.jpg"},
	}
	_, err := suite.store.Add(ctx, p, 2)
	require.NoError(t, err)

	raw, ok, err := suite.storage.Get(ctx, cart.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)

	assert.JSONEq(t,
		`[{"id":15,"name":"Phone","price":79999.5,"currency":"RUB","images":["p.jpg"],"parameters":"Категория=Смартфоны","quantity":2}]`,
		raw)
	assert.Contains(t, raw, `"price":79999.5`, "price is a bare number")

	want := domain.Cart{Items: []domain.CartItem{domain.NewCartItem(p, 2)}}
	assertCart(t, want, suite.store.Load(ctx))
}

func (suite *storeSuite) TestClear() {
	t := suite.T()
	ctx := t.Context()

	_, err := suite.store.AddOne(ctx, randomProduct())
	require.NoError(t, err)
	suite.notified = 0

	require.NoError(t, suite.store.Clear(ctx))

	_, ok, err := suite.storage.Get(ctx, cart.DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok, "slot is deleted, not emptied")

	assertCart(t, domain.Cart{}, suite.store.Load(ctx))
	assert.Equal(t, 1, suite.notified)
}

func (suite *storeSuite) TestTotal() {
	t := suite.T()

	c := domain.Cart{Items: []domain.CartItem{
		{ProductID: "1", Price: rub(79999), Quantity: 1},
		{ProductID: "2", Price: rub(12999), Quantity: 2},
	}}

	assert.True(t, decimal.NewFromInt(105997).Equal(suite.store.Total(c)))
	assert.True(t, decimal.Zero.Equal(suite.store.Total(domain.Cart{})))
}

func (suite *storeSuite) TestPersistFailure() {
	t := suite.T()
	ctx := t.Context()

	origin := memstore.NewOrigin(memstore.WithQuota(64))
	store, err := cart.NewStore(origin.Open(), suite.notifier, cart.WithMetrics(suite.metrics))
	require.NoError(t, err)

	product := randomProduct()

	got, err := store.AddOne(ctx, product)
	require.ErrorIs(t, err, cart.ErrNotPersisted)
	require.ErrorIs(t, err, memstore.ErrQuotaExceeded)

	assertCart(t, domain.Cart{Items: []domain.CartItem{domain.NewCartItem(product, 1)}}, got)
	assertCart(t, domain.Cart{}, store.Load(ctx))
	assert.Zero(t, suite.notified, "failed writes are not announced")
	assert.Equal(t, 1.0, testutil.ToFloat64(suite.metrics.PersistFailures.WithLabelValues("add")))
}

func (suite *storeSuite) TestClear_Failure() {
	t := suite.T()

	store, err := cart.NewStore(failingStorage{removeErr: errors.New("read-only")}, suite.notifier)
	require.NoError(t, err)

	err = store.Clear(t.Context())
	require.ErrorIs(t, err, cart.ErrNotPersisted)
	assert.Zero(t, suite.notified)
}

func TestNewStore(t *testing.T) {
	storage := memstore.NewOrigin().Open()

	tests := []struct {
		name      string
		storage   *memstore.Handle
		notifier  *notify.Notifier
		opts      []cart.Option
		wantError string
	}{
		{
			name:     "defaults: ok",
			storage:  storage,
			notifier: notify.New(cart.DefaultKey),
		},
		{
			name:      "nil notifier: error",
			storage:   storage,
			wantError: "notifier is nil",
		},
		{
			name:      "empty key: error",
			storage:   storage,
			notifier:  notify.New(""),
			opts:      []cart.Option{cart.WithKey("")},
			wantError: "key is empty",
		},
		{
			name:      "key mismatch: error",
			storage:   storage,
			notifier:  notify.New("other"),
			wantError: "notifier key[other] does not match store key[electronic_cart]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cart.NewStore(tt.storage, tt.notifier, tt.opts...)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
		})
	}
}

type failingStorage struct {
	getErr    error
	removeErr error
}

func (s failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, s.getErr
}

func (s failingStorage) Set(context.Context, string, string) error {
	return nil
}

func (s failingStorage) Remove(context.Context, string) error {
	return s.removeErr
}

func randomProduct() domain.Product {
	return domain.Product{
		ID:         domain.ProductID(gofakeit.DigitN(6)),
		Name:       gofakeit.ProductName(),
		Parameters: "Категория=" + gofakeit.ProductCategory(),
		Price:      rub(int64(gofakeit.Number(100, 200000))),
		Count:      gofakeit.Number(1, 50),
		Images:     []string{gofakeit.UUID() + ".jpg"},
	}
}

func rub(amount int64) domain.Money {
	return domain.Money{Amount: decimal.NewFromInt(amount), Currency: currency.RUB}
}

func ptr(s string) *string {
	return &s
}

func assertCart(t *testing.T, expected, actual domain.Cart) {
	t.Helper()

	opts := cmp.Options{
		cmp.Comparer(func(x, y currency.Unit) bool {
			return x.String() == y.String()
		}),
		cmp.Comparer(func(x, y decimal.Decimal) bool {
			return x.Equal(y)
		}),
		cmpopts.EquateEmpty(),
	}

	diff := cmp.Diff(expected, actual, opts)
	assert.Empty(t, diff)
}
