package domain

import (
	"github.com/shopspring/decimal"
)

type Cart struct {
	Items []CartItem
}

type CartItem struct {
	ProductID   ProductID
	Name        string
	Price       Money
	Images      []string
	Parameters  string
	Description string

	Quantity int
}

// NewCartItem makes a line for product holding quantity units.
func NewCartItem(p Product, quantity int) CartItem {
	return CartItem{
		ProductID:   p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Images:      append([]string(nil), p.Images...),
		Parameters:  p.Parameters,
		Description: p.Description,
		Quantity:    quantity,
	}
}

// Subtotal is price multiplied by quantity.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Times(i.Quantity).Amount
}

func (c Cart) Find(id ProductID) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == id {
			return item, true
		}
	}
	return CartItem{}, false
}

// Len is the number of distinct lines, not the number of units.
func (c Cart) Len() int {
	return len(c.Items)
}

// Units is the sum of quantities over all lines.
func (c Cart) Units() int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clone returns a deep copy so callers never share the backing arrays.
func (c Cart) Clone() Cart {
	if c.Items == nil {
		return Cart{}
	}
	items := make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		item.Images = append([]string(nil), item.Images...)
		items[i] = item
	}
	return Cart{Items: items}
}
