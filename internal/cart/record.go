package cart

import (
	"encoding/json"
	"fmt"

	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// itemRecord is the stored shape of one cart line. Field names match the
// carts written by the storefront before, so existing slots keep loading.
type itemRecord struct {
	ID          domain.ProductID `json:"id"`
	Name        string           `json:"name"`
	Price       price            `json:"price"`
	Currency    string           `json:"currency,omitempty"`
	Images      []string         `json:"images"`
	Parameters  string           `json:"parameters"`
	Description string           `json:"description,omitempty"`
	Quantity    int              `json:"quantity"`
}

// price is written as a bare JSON number, the way the storefront always
// stored it. Quoted amounts are still accepted on read.
type price struct {
	decimal.Decimal
}

func (p price) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

func encodeCart(c domain.Cart) (string, error) {
	records := make([]itemRecord, 0, len(c.Items))
	for _, item := range c.Items {
		records = append(records, mapDomainToRecord(item))
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("json.Marshal: %w", err)
	}
	return string(data), nil
}

func decodeCart(raw string, fallback currency.Unit) (domain.Cart, error) {
	var records []itemRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return domain.Cart{}, fmt.Errorf("json.Unmarshal: %w", err)
	}

	items := make([]domain.CartItem, 0, len(records))
	for _, r := range records {
		item, err := mapRecordToDomain(r, fallback)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("mapRecordToDomain: %w", err)
		}
		items = append(items, item)
	}

	return normalize(domain.Cart{Items: items}), nil
}

func mapDomainToRecord(item domain.CartItem) itemRecord {
	return itemRecord{
		ID:          item.ProductID,
		Name:        item.Name,
		Price:       price{item.Price.Amount},
		Currency:    item.Price.Currency.String(),
		Images:      item.Images,
		Parameters:  item.Parameters,
		Description: item.Description,
		Quantity:    item.Quantity,
	}
}

func mapRecordToDomain(r itemRecord, fallback currency.Unit) (domain.CartItem, error) {
	unit := fallback
	if r.Currency != "" {
		parsed, err := currency.ParseISO(r.Currency)
		if err != nil {
			return domain.CartItem{}, fmt.Errorf("currency[%s] is not valid: %w", r.Currency, err)
		}
		unit = parsed
	}

	return domain.CartItem{
		ProductID:   r.ID,
		Name:        r.Name,
		Price:       domain.Money{Amount: r.Price.Decimal, Currency: unit},
		Images:      r.Images,
		Parameters:  r.Parameters,
		Description: r.Description,
		Quantity:    r.Quantity,
	}, nil
}

// normalize restores the cart invariants on data this store did not write:
// lines without an id are dropped, repeated ids are merged into the first
// occurrence and quantities below one are raised to one.
func normalize(c domain.Cart) domain.Cart {
	var (
		items []domain.CartItem
		index = make(map[domain.ProductID]int, len(c.Items))
	)

	for _, item := range c.Items {
		if item.ProductID.IsZero() {
			continue
		}
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		if i, ok := index[item.ProductID]; ok {
			items[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(items)
		items = append(items, item)
	}

	return domain.Cart{Items: items}
}
