package types

// Account holds the ledger-tracked balances for a single address: the native
// currency balance plus the per-asset holdings the account has opted in to.
// A holdings entry with a zero amount still records an opt-in.
type Account struct {
	Balance  uint64
	Holdings map[uint64]uint64
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Holdings: make(map[uint64]uint64)}
	}
	clone := &Account{Balance: a.Balance, Holdings: make(map[uint64]uint64, len(a.Holdings))}
	for id, amount := range a.Holdings {
		clone.Holdings[id] = amount
	}
	return clone
}

// HoldingOf returns the held amount of the asset and whether the account has
// opted in to it.
func (a *Account) HoldingOf(assetID uint64) (uint64, bool) {
	if a == nil || a.Holdings == nil {
		return 0, false
	}
	amount, ok := a.Holdings[assetID]
	return amount, ok
}
