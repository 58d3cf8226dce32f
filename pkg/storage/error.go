package storage

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "record"
	}
	if e.ID == "" {
		return kind + " not found"
	}

	return kind + " not found: " + e.ID
}
