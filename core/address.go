package core

import (
	"encoding/hex"
	"fmt"
)

// Address is an opaque 20-byte account identifier. Ownership of a particle
// is defined purely by byte-exact equality of Address values.
type Address [20]byte

// String returns the canonical lowercase-hex form of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress decodes the canonical hex form produced by Address.String.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("core: invalid address %q: %w", s, err)
	}
	if len(b) != 20 {
		return Address{}, fmt.Errorf("core: invalid address %q: want 20 bytes, got %d", s, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// IsZero reports whether a is the zero-value address.
func (a Address) IsZero() bool {
	return a == Address{}
}
