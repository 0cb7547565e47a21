package types

import (
	"encoding/hex"
	"fmt"
)

// AddressLength is the size in bytes of an account identifier.
const AddressLength = 20

// Address identifies an account on the ledger. Addresses are opaque and only
// compared for equality; the hex form is used at the API boundary.
type Address [AddressLength]byte

// ZeroAddress is the all-zero account identifier. Transactions must leave
// their rekey and close-out fields set to this value.
var ZeroAddress Address

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool { return a == ZeroAddress }

// String returns the lowercase hex encoding of the address.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// ParseAddress decodes a hex-encoded account identifier.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return addr, fmt.Errorf("invalid address length: got %d want %d", len(raw), AddressLength)
	}
	copy(addr[:], raw)
	return addr, nil
}
