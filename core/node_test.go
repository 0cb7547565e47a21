package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketnet/core/state"
	"marketnet/core/types"
	"marketnet/native/common"
	"marketnet/native/market"
	"marketnet/storage"
)

const (
	nodeAssetID uint64 = 7
	nodeRate    uint64 = 50
)

func nodeAddr(fill byte) types.Address {
	var addr types.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	appAddr     = nodeAddr(0xEE)
	creatorAddr = nodeAddr(0x01)
	sellerAddr  = nodeAddr(0x02)
	buyerAddr   = nodeAddr(0x03)
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	ledger, err := state.NewLedger(storage.NewMemDB())
	require.NoError(t, err)
	require.NoError(t, ledger.SetAppAddress(appAddr))
	require.NoError(t, ledger.PutAssetParams(nodeAssetID, &types.AssetParams{
		Total:         1000,
		DefaultFrozen: true,
		Clawback:      appAddr,
		Freeze:        appAddr,
		UnitName:      "WARE",
	}))
	require.NoError(t, ledger.PutAccount(appAddr, &types.Account{
		Balance:  1_000_000,
		Holdings: map[uint64]uint64{nodeAssetID: 0},
	}))
	require.NoError(t, ledger.PutAccount(creatorAddr, &types.Account{Balance: 200_000}))
	require.NoError(t, ledger.PutAccount(sellerAddr, &types.Account{
		Balance:  50_000,
		Holdings: map[uint64]uint64{nodeAssetID: 10},
	}))
	require.NoError(t, ledger.PutAccount(buyerAddr, &types.Account{Balance: 100_000}))
	return NewNode(ledger, nil, nil, nil)
}

func initializeGroup(waiting uint64) []types.Transaction {
	return []types.Transaction{{
		Type:   types.TxAppCall,
		Sender: creatorAddr,
		Args: [][]byte{
			types.AddressArg(creatorAddr),
			types.Uint64Arg(nodeAssetID),
			types.Uint64Arg(nodeRate),
			types.Uint64Arg(waiting),
		},
		ForeignAssets: []uint64{nodeAssetID},
	}}
}

func assetOptInGroup(account types.Address) []types.Transaction {
	return []types.Transaction{{
		Type:     types.TxAssetTransfer,
		Sender:   account,
		Receiver: account,
		AssetID:  nodeAssetID,
	}}
}

func setupSaleGroup(price, amount uint64) []types.Transaction {
	return []types.Transaction{{
		Type:   types.TxAppCall,
		Sender: sellerAddr,
		Args: [][]byte{
			[]byte(market.TagSetupSale),
			types.Uint64Arg(price),
			types.Uint64Arg(amount),
		},
		ForeignAssets: []uint64{nodeAssetID},
	}}
}

func buyGroup(price, amount uint64) []types.Transaction {
	return []types.Transaction{
		{
			Type:   types.TxAppCall,
			Sender: buyerAddr,
			Args: [][]byte{
				[]byte(market.TagBuy),
				types.Uint64Arg(nodeAssetID),
				types.Uint64Arg(amount),
			},
			Accounts:      []types.Address{sellerAddr},
			ForeignAssets: []uint64{nodeAssetID},
		},
		{
			Type:     types.TxPayment,
			Sender:   buyerAddr,
			Receiver: appAddr,
			Amount:   price,
		},
	}
}

func singleCallGroup(sender types.Address, tag string, accounts ...types.Address) []types.Transaction {
	return []types.Transaction{{
		Type:          types.TxAppCall,
		Sender:        sender,
		Args:          [][]byte{[]byte(tag)},
		Accounts:      accounts,
		ForeignAssets: []uint64{nodeAssetID},
	}}
}

func TestNodeSaleLifecycle(t *testing.T) {
	node := newTestNode(t)

	require.NoError(t, node.SubmitGroup(initializeGroup(10)))
	require.NoError(t, node.SubmitGroup(assetOptInGroup(buyerAddr)))
	require.NoError(t, node.SubmitGroup(setupSaleGroup(10_000, 3)))

	listing, ok := node.Listing(sellerAddr)
	require.True(t, ok)
	require.Equal(t, market.SaleListed, listing.State())

	require.NoError(t, node.SubmitGroup(buyGroup(10_000, 3)))
	listing, ok = node.Listing(sellerAddr)
	require.True(t, ok)
	require.Equal(t, market.SaleCommitted, listing.State())
	require.Equal(t, buyerAddr, listing.Buyer)

	require.NoError(t, node.SubmitGroup(singleCallGroup(sellerAddr, market.TagExecuteTransfer, sellerAddr)))

	// price 10000, relay cost 2000, royalty 5% of the 8000 remainder.
	seller := node.Account(sellerAddr)
	require.Equal(t, uint64(50_000-2*market.RelayFee+7_600), seller.Balance)
	require.Equal(t, uint64(7), seller.Holdings[nodeAssetID])
	require.Equal(t, uint64(3), node.Account(buyerAddr).Holdings[nodeAssetID])

	cfg, ok := node.Config()
	require.True(t, ok)
	require.Equal(t, uint64(400), cfg.CollectedFees)
	_, ok = node.Listing(sellerAddr)
	require.False(t, ok)

	require.NoError(t, node.SubmitGroup(singleCallGroup(creatorAddr, market.TagClaimFees)))
	require.Equal(t, uint64(200_000-2*market.RelayFee+400), node.Account(creatorAddr).Balance)
	require.Equal(t, uint64(999_000), node.Account(appAddr).Balance)

	cfg, ok = node.Config()
	require.True(t, ok)
	require.Equal(t, uint64(0), cfg.CollectedFees)
	require.Equal(t, uint64(6), node.Round())
}

func TestNodeRejectedGroupLeavesNoTrace(t *testing.T) {
	node := newTestNode(t)
	require.NoError(t, node.SubmitGroup(initializeGroup(10)))
	require.NoError(t, node.SubmitGroup(assetOptInGroup(buyerAddr)))
	require.NoError(t, node.SubmitGroup(setupSaleGroup(10_000, 3)))
	round := node.Round()
	buyerBefore := node.Account(buyerAddr).Balance
	appBefore := node.Account(appAddr).Balance

	// Underpaying discards the whole group, payment member included.
	err := node.SubmitGroup(buyGroup(9_999, 3))
	require.ErrorIs(t, err, market.ErrMalformedRequest)

	require.Equal(t, round, node.Round())
	require.Equal(t, buyerBefore, node.Account(buyerAddr).Balance)
	require.Equal(t, appBefore, node.Account(appAddr).Balance)
	listing, ok := node.Listing(sellerAddr)
	require.True(t, ok)
	require.Equal(t, market.SaleListed, listing.State())
}

func TestNodeRefundReopensSale(t *testing.T) {
	node := newTestNode(t)
	require.NoError(t, node.SubmitGroup(initializeGroup(10)))
	require.NoError(t, node.SubmitGroup(assetOptInGroup(buyerAddr)))
	require.NoError(t, node.SubmitGroup(setupSaleGroup(10_000, 3)))
	require.NoError(t, node.SubmitGroup(buyGroup(10_000, 3)))

	buyerBefore := node.Account(buyerAddr).Balance
	require.NoError(t, node.SubmitGroup(singleCallGroup(buyerAddr, market.TagRefund, sellerAddr)))

	// The refund returns the price minus one relay fee; the buyer also
	// paid the fee on the refund call itself.
	require.Equal(t, buyerBefore+10_000-2*market.RelayFee, node.Account(buyerAddr).Balance)
	listing, ok := node.Listing(sellerAddr)
	require.True(t, ok)
	require.Equal(t, market.SaleListed, listing.State())
	require.True(t, listing.Buyer.IsZero())
}

func TestNodeForcedSettlementAfterCloseOut(t *testing.T) {
	node := newTestNode(t)
	require.NoError(t, node.SubmitGroup(initializeGroup(3)))
	require.NoError(t, node.SubmitGroup(assetOptInGroup(buyerAddr)))
	require.NoError(t, node.SubmitGroup(setupSaleGroup(10_000, 3)))
	require.NoError(t, node.SubmitGroup(buyGroup(10_000, 3)))

	// The buyer clears marketplace-local state; the commitment's approval
	// flag disappears with it.
	require.NoError(t, node.SubmitGroup([]types.Transaction{{
		Type:         types.TxAppCall,
		Sender:       buyerAddr,
		OnCompletion: types.OnCloseOut,
	}}))

	err := node.SubmitGroup(singleCallGroup(sellerAddr, market.TagExecuteTransfer, sellerAddr))
	require.ErrorIs(t, err, market.ErrInvalidState)

	// Burn rounds until the waiting window elapses.
	for node.Round() < 7 {
		require.NoError(t, node.SubmitGroup([]types.Transaction{{
			Type:     types.TxPayment,
			Sender:   creatorAddr,
			Receiver: creatorAddr,
		}}))
	}
	require.NoError(t, node.SubmitGroup(singleCallGroup(sellerAddr, market.TagExecuteTransfer, sellerAddr)))
	require.Equal(t, uint64(3), node.Account(buyerAddr).Holdings[nodeAssetID])
}

func TestNodeHaltSwitchBlocksOperations(t *testing.T) {
	node := newTestNode(t)
	require.NoError(t, node.SubmitGroup(initializeGroup(10)))

	node.Halts().SetHalted("market", true)
	err := node.SubmitGroup(setupSaleGroup(10_000, 3))
	require.ErrorIs(t, err, common.ErrModuleHalted)

	node.Halts().SetHalted("market", false)
	require.NoError(t, node.SubmitGroup(setupSaleGroup(10_000, 3)))
}

func TestNodeRejectsTrailingAppCalls(t *testing.T) {
	node := newTestNode(t)
	require.NoError(t, node.SubmitGroup(initializeGroup(10)))

	group := setupSaleGroup(10_000, 3)
	group = append(group, types.Transaction{Type: types.TxAppCall, Sender: buyerAddr})
	require.ErrorIs(t, node.SubmitGroup(group), market.ErrMalformedRequest)
}
