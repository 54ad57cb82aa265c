package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrNotFound is returned when a path or configuration is absent from the
	// store or the media server.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a path is already persisted.
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationErrors holds validation errors, keyed by field name.
type ValidationErrors map[string][]string

// Append adds an error message for the given key.
func (v ValidationErrors) Append(key, message string) {
	v[key] = append(v[key], message)
}

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	var s strings.Builder

	s.WriteString("validation failed: ")
	for i, key := range slices.Sorted(maps.Keys(v)) {
		if i > 0 {
			s.WriteString("; ")
		}
		fmt.Fprintf(&s, "%s: %s", key, strings.Join(v[key], ", "))
	}

	return s.String()
}
