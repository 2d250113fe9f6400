package domain

// StorageEvent reports that another handle of the same storage origin
// changed Key. A nil value means the key was absent before or after the change.
type StorageEvent struct {
	Key      string
	OldValue *string
	NewValue *string
}

func (e StorageEvent) Removed() bool {
	return e.NewValue == nil
}
