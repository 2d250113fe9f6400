// Package attribute converts product specs to and from the single-string
// form stored in a product's parameters field:
//
//	Категория=Смартфоны|Цвет=Черный|Память=128ГБ
//
// "|" separates entries and the first "=" separates key from value. Both are
// reserved: there is no escaping, so a value containing "|" cannot be stored.
package attribute

import (
	"strings"

	"github.com/nikolayk812/storefront-cart/internal/domain"
)

const (
	// CategoryKey is the key of the entry holding the product category.
	CategoryKey = "Категория"

	entrySep = "|"
	kvSep    = "="
)

// Decode parses raw into attributes. Segments without "=", or with an empty
// key or value after trimming, are skipped.
func Decode(raw string) []domain.Attribute {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var attrs []domain.Attribute
	for _, segment := range strings.Split(raw, entrySep) {
		key, value, ok := parseSegment(segment)
		if !ok {
			continue
		}
		attrs = append(attrs, domain.NewAttribute(key, value))
	}

	return attrs
}

// Encode builds the stored form. A non-empty category is always written
// first; entries with an empty key or value are dropped.
func Encode(entries []domain.Attribute, category string) string {
	parts := make([]string, 0, len(entries)+1)

	if category != "" {
		parts = append(parts, CategoryKey+kvSep+category)
	}

	for _, e := range entries {
		if !e.Complete() {
			continue
		}
		parts = append(parts, e.Key+kvSep+e.Value)
	}

	return strings.Join(parts, entrySep)
}

// ExtractCategory returns the category value or "" when there is none.
func ExtractCategory(raw string) string {
	for _, segment := range strings.Split(raw, entrySep) {
		key, value, ok := parseSegment(segment)
		if ok && key == CategoryKey {
			return value
		}
	}
	return ""
}

// Split decodes raw and separates the category from the remaining specs,
// which is the shape edit forms work with.
func Split(raw string) (category string, specs []domain.Attribute) {
	for _, attr := range Decode(raw) {
		if attr.Key == CategoryKey {
			if category == "" {
				category = attr.Value
			}
			continue
		}
		specs = append(specs, attr)
	}
	return category, specs
}

// Validate counts entries that would be dropped by Encode.
func Validate(entries []domain.Attribute) (incomplete int, ok bool) {
	for _, e := range entries {
		if !e.Complete() {
			incomplete++
		}
	}
	return incomplete, incomplete == 0
}

func parseSegment(segment string) (key, value string, ok bool) {
	key, value, found := strings.Cut(segment, kvSep)
	if !found {
		return "", "", false
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return "", "", false
	}

	return key, value, true
}
