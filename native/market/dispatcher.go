package market

import (
	"fmt"

	"marketnet/core/types"
)

// Operation tags accepted as the first positional argument of an application
// call. Creation carries no tag: it is signaled by the configuration not
// existing yet.
const (
	TagSetupSale       = "setupSale"
	TagBuy             = "buy"
	TagExecuteTransfer = "executeTransfer"
	TagRefund          = "refund"
	TagClaimFees       = "claimFees"
)

// Dispatcher routes an atomic call group to the engine operation named by its
// leading application call. All group-shape and argument-shape validation
// happens here, before the engine sees the request; the engine then enforces
// the semantic preconditions.
type Dispatcher struct {
	engine *Engine
}

// NewDispatcher wires a dispatcher to the supplied engine.
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Dispatch validates and executes one call group. The caller is responsible
// for staging all effects in an atomic unit and discarding them if an error
// is returned.
func (d *Dispatcher) Dispatch(group []types.Transaction) error {
	if d == nil || d.engine == nil || d.engine.state == nil {
		return errNilState
	}
	if len(group) == 0 || len(group) > types.MaxGroupSize {
		return fmt.Errorf("%w: group size %d", ErrMalformedRequest, len(group))
	}
	lead := &group[0]
	if lead.Type != types.TxAppCall {
		return fmt.Errorf("%w: leading group member must be an application call", ErrMalformedRequest)
	}
	if _, ok := d.engine.state.ConfigGet(); !ok {
		return d.dispatchCreate(group)
	}
	switch lead.OnCompletion {
	case types.OnOptIn:
		return nil
	case types.OnCloseOut:
		return d.engine.CloseOut(lead.Sender)
	}
	if len(lead.Args) == 0 {
		return fmt.Errorf("%w: operation tag required", ErrMalformedRequest)
	}
	switch string(lead.Args[0]) {
	case TagSetupSale:
		return d.dispatchSetupSale(group)
	case TagBuy:
		return d.dispatchBuy(group)
	case TagExecuteTransfer:
		return d.dispatchExecuteTransfer(group)
	case TagRefund:
		return d.dispatchRefund(group)
	case TagClaimFees:
		return d.dispatchClaimFees(group)
	default:
		return fmt.Errorf("%w: unknown operation tag %q", ErrMalformedRequest, lead.Args[0])
	}
}

// dispatchCreate handles the mandatory initialization call. Arguments:
// creator address, asset id, royalty rate in thousandths, waiting rounds.
func (d *Dispatcher) dispatchCreate(group []types.Transaction) error {
	lead := &group[0]
	if len(group) != 1 {
		return fmt.Errorf("%w: initialization expects a single transaction", ErrMalformedRequest)
	}
	if len(lead.Args) != 4 {
		return fmt.Errorf("%w: initialization expects 4 arguments, got %d", ErrMalformedRequest, len(lead.Args))
	}
	if err := CheckCleanTransaction(group, 0); err != nil {
		return err
	}
	creator, err := types.DecodeAddressArg(lead.Args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	assetID, err := types.DecodeUint64Arg(lead.Args[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	rate, err := types.DecodeUint64Arg(lead.Args[2])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	waiting, err := types.DecodeUint64Arg(lead.Args[3])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return d.engine.Initialize(creator, assetID, rate, waiting)
}

// dispatchSetupSale handles a single-transaction listing request. Arguments:
// tag, price, asset amount.
func (d *Dispatcher) dispatchSetupSale(group []types.Transaction) error {
	lead := &group[0]
	if len(group) != 1 {
		return fmt.Errorf("%w: setupSale expects a single transaction", ErrMalformedRequest)
	}
	if len(lead.Args) != 3 {
		return fmt.Errorf("%w: setupSale expects 3 arguments, got %d", ErrMalformedRequest, len(lead.Args))
	}
	if err := CheckCleanTransaction(group, 0); err != nil {
		return err
	}
	price, err := types.DecodeUint64Arg(lead.Args[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	amount, err := types.DecodeUint64Arg(lead.Args[2])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return d.engine.SetupSale(lead.Sender, price, amount)
}

// dispatchBuy handles the two-member commitment group: the application call
// plus a companion payment to the marketplace account. Arguments: tag, asset
// id, asset amount. The seller is the first referenced account.
func (d *Dispatcher) dispatchBuy(group []types.Transaction) error {
	lead := &group[0]
	if len(group) != 2 {
		return fmt.Errorf("%w: buy expects exactly 2 group members", ErrMalformedRequest)
	}
	if len(lead.Args) != 3 {
		return fmt.Errorf("%w: buy expects 3 arguments, got %d", ErrMalformedRequest, len(lead.Args))
	}
	if len(lead.Accounts) < 1 {
		return fmt.Errorf("%w: buy must reference the seller account", ErrMalformedRequest)
	}
	payment := &group[1]
	if payment.Type != types.TxPayment {
		return fmt.Errorf("%w: second group member must be a payment", ErrMalformedRequest)
	}
	if err := CheckCleanTransaction(group, 0); err != nil {
		return err
	}
	if err := CheckCleanTransaction(group, 1); err != nil {
		return err
	}
	if payment.Receiver != d.engine.state.AppAddress() {
		return fmt.Errorf("%w: payment must be addressed to the marketplace", ErrMalformedRequest)
	}
	assetID, err := types.DecodeUint64Arg(lead.Args[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	amount, err := types.DecodeUint64Arg(lead.Args[2])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return d.engine.Buy(lead.Sender, lead.Accounts[0], assetID, amount, payment.Amount)
}

// dispatchExecuteTransfer handles the settlement call. The seller is the
// first referenced account; the buyer is read from the committed listing.
func (d *Dispatcher) dispatchExecuteTransfer(group []types.Transaction) error {
	lead := &group[0]
	if len(group) != 1 {
		return fmt.Errorf("%w: executeTransfer expects a single transaction", ErrMalformedRequest)
	}
	if len(lead.Args) != 1 {
		return fmt.Errorf("%w: executeTransfer expects 1 argument, got %d", ErrMalformedRequest, len(lead.Args))
	}
	if len(lead.Accounts) < 1 {
		return fmt.Errorf("%w: executeTransfer must reference the seller account", ErrMalformedRequest)
	}
	if err := CheckCleanTransaction(group, 0); err != nil {
		return err
	}
	return d.engine.ExecuteTransfer(lead.Accounts[0])
}

// dispatchRefund handles the buyer's relief valve. The seller is the first
// referenced account; the caller must be the committed buyer.
func (d *Dispatcher) dispatchRefund(group []types.Transaction) error {
	lead := &group[0]
	if len(group) != 1 {
		return fmt.Errorf("%w: refund expects a single transaction", ErrMalformedRequest)
	}
	if len(lead.Args) != 1 {
		return fmt.Errorf("%w: refund expects 1 argument, got %d", ErrMalformedRequest, len(lead.Args))
	}
	if len(lead.Accounts) < 1 {
		return fmt.Errorf("%w: refund must reference the seller account", ErrMalformedRequest)
	}
	if err := CheckCleanTransaction(group, 0); err != nil {
		return err
	}
	return d.engine.Refund(lead.Sender, lead.Accounts[0])
}

func (d *Dispatcher) dispatchClaimFees(group []types.Transaction) error {
	lead := &group[0]
	if len(group) != 1 {
		return fmt.Errorf("%w: claimFees expects a single transaction", ErrMalformedRequest)
	}
	if len(lead.Args) != 1 {
		return fmt.Errorf("%w: claimFees expects 1 argument, got %d", ErrMalformedRequest, len(lead.Args))
	}
	if err := CheckCleanTransaction(group, 0); err != nil {
		return err
	}
	return d.engine.ClaimFees(lead.Sender)
}
