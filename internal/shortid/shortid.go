// Package shortid generates short random identifiers for labelling requests,
// WebSocket subscribers and temporary files.
package shortid

import (
	"crypto/rand"
	"encoding/hex"
)

const defaultLenBytes = 6

// ID is a short ID. It does not guarantee uniqueness and must not be used
// where a collision would be harmful.
type ID []byte

// New generates a new short ID, of length 6 bytes.
func New() ID {
	return NewN(defaultLenBytes)
}

// NewN generates a new short ID of n bytes.
func NewN(n int) ID {
	p := make([]byte, n)
	_, _ = rand.Read(p)
	return ID(p)
}

// String implements the fmt.Stringer interface.
func (id ID) String() string {
	return hex.EncodeToString(id)
}
