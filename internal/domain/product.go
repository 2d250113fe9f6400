package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProductID identifies a catalog product. Stored carts and the product API
// carry integer ids, other sources may use strings; both decode into the same type.
type ProductID string

func (id ProductID) String() string {
	return string(id)
}

func (id ProductID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// Int returns the numeric form of the id used by the product API.
func (id ProductID) Int() (int, error) {
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, fmt.Errorf("product id[%s] is not numeric: %w", id, err)
	}
	return n, nil
}

// MarshalJSON writes the id as a JSON number whenever its text is a valid
// number literal, since that is how the product API and stored carts carry
// ids. Ids decoded from numbers therefore keep their kind ("-3", "1.5"), while
// a numeric id decoded from a string ("15") is written back as the number 15.
// Anything else, including "007", stays a string.
func (id ProductID) MarshalJSON() ([]byte, error) {
	if isNumberLiteral(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("json.Unmarshal: %w", err)
		}
		*id = ProductID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id[%s] is neither number nor string: %w", data, err)
	}
	*id = ProductID(n.String())
	return nil
}

func isNumberLiteral(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	return json.Valid([]byte(s))
}

type Product struct {
	ID          ProductID
	Name        string
	Description string
	Parameters  string
	Price       Money
	Count       int
	Images      []string
}
