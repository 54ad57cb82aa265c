package ptr

// New creates a new pointer to the given value.
func New[T any](value T) *T {
	return &value
}

// ValueOr dereferences p, returning def if p is nil.
func ValueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}

	return *p
}

// NonZero returns a pointer to value, or nil if value is the zero value.
func NonZero[T comparable](value T) *T {
	var zero T
	if value == zero {
		return nil
	}

	return &value
}
