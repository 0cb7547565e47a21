package types

// AssetParams describes an asset configured on the ledger. The clawback and
// freeze authorities decide who may move or freeze the asset on behalf of
// holders; an escrow application must hold both to act as sole transfer
// authority.
type AssetParams struct {
	Total         uint64
	Decimals      uint32
	DefaultFrozen bool
	Clawback      Address
	Freeze        Address
	UnitName      string
}

// Clone returns a copy of the asset parameters.
func (p *AssetParams) Clone() *AssetParams {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
