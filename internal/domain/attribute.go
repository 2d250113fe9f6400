package domain

import "github.com/google/uuid"

// Attribute is one key=value spec of a product. ID only tracks the entry
// while it is being edited and is never serialized.
type Attribute struct {
	ID    uuid.UUID
	Key   string
	Value string
}

func NewAttribute(key, value string) Attribute {
	return Attribute{
		ID:    uuid.New(),
		Key:   key,
		Value: value,
	}
}

// Complete reports whether both key and value are set.
func (a Attribute) Complete() bool {
	return a.Key != "" && a.Value != ""
}
