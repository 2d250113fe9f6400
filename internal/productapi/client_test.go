package productapi_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gorilla/mux"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/productapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type clientSuite struct {
	suite.Suite

	server *httptest.Server
	api    *fakeAPI
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(clientSuite))
}

func (suite *clientSuite) SetupTest() {
	suite.api = newFakeAPI()
	suite.server = httptest.NewServer(suite.api.router())
}

func (suite *clientSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *clientSuite) TestListProducts() {
	t := suite.T()

	p1 := suite.api.put(7, 79999, 3)
	p2 := suite.api.put(8, 12999, 0)

	c, err := productapi.New(suite.server.URL)
	require.NoError(t, err)

	products, err := c.ListProducts(t.Context())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, domain.ProductID("7"), products[0].ID)
	assert.Equal(t, p1.Name, products[0].Name)
	assert.True(t, decimal.NewFromInt(79999).Equal(products[0].Price.Amount))
	assert.Equal(t, "RUB", products[0].Price.Currency.String())
	assert.Equal(t, 3, products[0].Count)
	assert.Equal(t, p2.Images, products[1].Images)
}

func (suite *clientSuite) TestGetProduct() {
	tests := []struct {
		name      string
		id        domain.ProductID
		wantName  bool
		wantErrIs error
		wantError string
	}{
		{
			name:     "existing: ok",
			id:       "7",
			wantName: true,
		},
		{
			name:      "missing: not found",
			id:        "99",
			wantErrIs: productapi.ErrNotFound,
		},
		{
			name:      "empty id: error",
			id:        "",
			wantError: "product id is empty",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			p := suite.api.put(7, 500, 1)

			c, err := productapi.New(suite.server.URL)
			require.NoError(t, err)

			got, err := c.GetProduct(t.Context(), tt.id)
			switch {
			case tt.wantError != "":
				require.EqualError(t, err, tt.wantError)
				return
			case tt.wantErrIs != nil:
				require.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, p.Name, got.Name)
			assert.Equal(t, p.Parameters, got.Parameters)
		})
	}
}

func (suite *clientSuite) TestChangeCount() {
	t := suite.T()
	suite.api.put(7, 500, 5)

	c, err := productapi.New(suite.server.URL)
	require.NoError(t, err)

	require.NoError(t, c.ChangeCount(t.Context(), "7", -2))
	assert.Equal(t, 3, suite.api.count(7))

	err = c.ChangeCount(t.Context(), "7", -10)
	var statusErr *productapi.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.Equal(t, 3, suite.api.count(7))

	require.ErrorIs(t, c.ChangeCount(t.Context(), "404", 1), productapi.ErrNotFound)
	require.Error(t, c.ChangeCount(t.Context(), "sku-1", 1))
}

func TestNew_EmptyURL(t *testing.T) {
	_, err := productapi.New("")
	require.EqualError(t, err, "baseURL is empty")
}

func TestImageURL(t *testing.T) {
	const base = "https://electronic.s3.regru.cloud/products/"

	assert.Equal(t, "https://electronic.s3.regru.cloud/products/phone.jpg", productapi.ImageURL(base, "phone.jpg"))
	assert.Equal(t, "https://electronic.s3.regru.cloud/products/my%20phone.jpg", productapi.ImageURL(base, "my phone.jpg"))
	assert.Empty(t, productapi.ImageURL(base, ""))
}

func TestParseID(t *testing.T) {
	id, err := productapi.ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductID("42"), id)

	_, err = productapi.ParseID("")
	require.EqualError(t, err, "product id is empty")

	_, err = productapi.ParseID("abc")
	require.EqualError(t, err, "product id[abc] is not numeric")
}

// fakeAPI mimics the product service: failures come back as a 200 with an
// error code in the body.
type fakeAPI struct {
	mu       sync.Mutex
	products map[int]productJSON
	order    []int
}

type productJSON struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  string   `json:"parameters"`
	Count       int      `json:"count"`
	Price       int      `json:"price"`
	Images      []string `json:"images"`
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{products: make(map[int]productJSON)}
}

func (f *fakeAPI) put(id, price, count int) productJSON {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := productJSON{
		ID:          id,
		Name:        gofakeit.ProductName(),
		Description: gofakeit.ProductDescription(),
		Parameters:  "Категория=" + gofakeit.ProductCategory(),
		Count:       count,
		Price:       price,
		Images:      []string{gofakeit.UUID() + ".jpg"},
	}
	if _, ok := f.products[id]; !ok {
		f.order = append(f.order, id)
	}
	f.products[id] = p
	return p
}

func (f *fakeAPI) count(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Count
}

func (f *fakeAPI) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/product", f.list).Methods(http.MethodGet)
	r.HandleFunc("/product/change", f.change).Methods(http.MethodPut)
	r.HandleFunc("/product/{id}", f.get).Methods(http.MethodGet)
	return r
}

func (f *fakeAPI) list(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	products := make([]productJSON, 0, len(f.order))
	for _, id := range f.order {
		products = append(products, f.products[id])
	}
	writeJSON(w, map[string]any{"code": 200, "message": "ok", "Products": products})
}

func (f *fakeAPI) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, map[string]any{"code": 400, "message": "bad id"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[id]
	if !ok {
		writeJSON(w, map[string]any{"code": 404, "message": "not found"})
		return
	}

	resp := map[string]any{"code": 200, "message": "ok"}
	data, _ := json.Marshal(p)
	_ = json.Unmarshal(data, &resp)
	writeJSON(w, resp)
}

func (f *fakeAPI) change(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    int
		Count int
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]any{"code": 400, "message": "bad json"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[req.ID]
	if !ok {
		writeJSON(w, map[string]any{"code": 404, "message": "not found"})
		return
	}
	if p.Count+req.Count < 0 {
		writeJSON(w, map[string]any{"code": 409, "message": "insufficient stock"})
		return
	}
	p.Count += req.Count
	f.products[req.ID] = p
	writeJSON(w, map[string]any{"code": 200, "message": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
