package types

import (
	"encoding/binary"
	"fmt"
)

// TxType enumerates the transaction kinds a call group may contain.
type TxType uint8

const (
	TxAppCall TxType = iota
	TxPayment
	TxAssetTransfer
)

// OnCompletion selects the lifecycle action attached to an application call.
type OnCompletion uint8

const (
	OnNoOp OnCompletion = iota
	OnOptIn
	OnCloseOut
)

// MaxGroupSize bounds the number of transactions in one atomic group.
const MaxGroupSize = 16

// Transaction is one member of an atomic call group. Application calls carry
// positional byte-string arguments plus side-channel lists of referenced
// accounts and assets; payments and asset transfers move value. RekeyTo,
// CloseTo and AssetCloseTo redirect authority or remaining funds and must be
// zero for any transaction the marketplace accepts.
type Transaction struct {
	Type         TxType
	Sender       Address
	Receiver     Address
	Amount       uint64
	AssetID      uint64
	OnCompletion OnCompletion

	Args          [][]byte
	Accounts      []Address
	ForeignAssets []uint64

	RekeyTo      Address
	CloseTo      Address
	AssetCloseTo Address
}

// ReferencesAsset reports whether the asset id appears in the transaction's
// foreign-assets list.
func (t *Transaction) ReferencesAsset(assetID uint64) bool {
	for _, id := range t.ForeignAssets {
		if id == assetID {
			return true
		}
	}
	return false
}

// Uint64Arg encodes an integer argument as 8 big-endian bytes, the wire form
// used for positional application arguments.
func Uint64Arg(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeUint64Arg decodes an 8-byte big-endian integer argument.
func DecodeUint64Arg(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("integer argument must be 8 bytes, got %d", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// AddressArg encodes an account identifier argument.
func AddressArg(addr Address) []byte {
	out := make([]byte, AddressLength)
	copy(out, addr[:])
	return out
}

// DecodeAddressArg decodes an account identifier argument.
func DecodeAddressArg(raw []byte) (Address, error) {
	var addr Address
	if len(raw) != AddressLength {
		return addr, fmt.Errorf("address argument must be %d bytes, got %d", AddressLength, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
