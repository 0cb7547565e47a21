package market

import (
	"fmt"

	"marketnet/core/types"
)

// CheckCleanTransaction verifies that the referenced group member exists and
// carries no rekey or close-out redirection, which would let a caller divert
// funds or authority mid-group.
func CheckCleanTransaction(group []types.Transaction, index int) error {
	if index < 0 || index >= len(group) {
		return fmt.Errorf("%w: transaction index %d outside group of %d", ErrMalformedRequest, index, len(group))
	}
	txn := &group[index]
	if !txn.RekeyTo.IsZero() {
		return fmt.Errorf("%w: rekey field must be unset", ErrMalformedRequest)
	}
	if !txn.CloseTo.IsZero() {
		return fmt.Errorf("%w: close-remainder field must be unset", ErrMalformedRequest)
	}
	if !txn.AssetCloseTo.IsZero() {
		return fmt.Errorf("%w: asset close-out field must be unset", ErrMalformedRequest)
	}
	return nil
}

// checkAssetCustody verifies the account currently holds at least the
// required quantity of the asset. Accounts that never opted in hold zero.
func checkAssetCustody(state engineState, account types.Address, assetID, required uint64) error {
	held, _, err := state.AssetHolding(account, assetID)
	if err != nil {
		return err
	}
	if held < required {
		return fmt.Errorf("%w: account %s holds %d of asset %d, need %d", ErrInsufficientBalance, account, held, assetID, required)
	}
	return nil
}
