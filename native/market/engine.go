package market

import (
	"errors"
	"fmt"
	"math"

	"marketnet/core/events"
	"marketnet/core/types"
	"marketnet/native/common"
)

const moduleName = "market"

var errNilState = errors.New("market engine: state not configured")

// engineState is the externally-owned store and transfer surface the engine
// operates against. The host ledger implements it for real runs; tests inject
// an in-memory fake. Every mutation issued through it is staged inside the
// current atomic group and discarded wholesale if the call fails.
type engineState interface {
	ConfigGet() (*MarketConfig, bool)
	ConfigPut(*MarketConfig) error

	ListingGet(seller types.Address) (*Listing, bool)
	ListingPut(seller types.Address, listing *Listing) error
	ListingDelete(seller types.Address) error

	BuyerApprovalGet(buyer types.Address) (uint64, bool)
	BuyerApprovalPut(buyer types.Address, flag uint64) error
	BuyerApprovalDelete(buyer types.Address) error

	AssetHolding(account types.Address, assetID uint64) (uint64, bool, error)
	AssetParams(assetID uint64) (*types.AssetParams, bool, error)

	AppAddress() types.Address
	CurrentRound() uint64

	SendPayment(to types.Address, amount uint64) error
	SendAssetTransfer(from, to types.Address, assetID, amount uint64) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine implements the marketplace escrow state machine. It holds no state
// of its own beyond wiring: all durable reads and writes go through the
// injected engineState, so the atomicity of a call is exactly the atomicity
// of the surrounding group.
type Engine struct {
	state   engineState
	emitter events.Emitter
	halts   common.HaltView
}

// NewEngine creates a marketplace engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHalts configures the operational halt switch consulted by every
// operation.
func (e *Engine) SetHalts(v common.HaltView) { e.halts = v }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return common.Guard(e.halts, moduleName)
}

func (e *Engine) config() (*MarketConfig, error) {
	cfg, ok := e.state.ConfigGet()
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

// Initialize persists the write-once marketplace configuration. It runs
// exactly once, at contract creation, and verifies the traded asset is
// prepared for escrow custody: zero decimal places and frozen by default, so
// holders cannot move it without this application's clawback authority.
func (e *Engine) Initialize(creator types.Address, assetID, royaltyRate, waitingRounds uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if _, ok := e.state.ConfigGet(); ok {
		return ErrAlreadyInitialized
	}
	params, ok, err := e.state.AssetParams(assetID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: asset %d does not exist", ErrInvalidAssetConfig, assetID)
	}
	if params.Decimals != 0 {
		return fmt.Errorf("%w: asset %d has %d decimals, want 0", ErrInvalidAssetConfig, assetID, params.Decimals)
	}
	if !params.DefaultFrozen {
		return fmt.Errorf("%w: asset %d is not frozen by default", ErrInvalidAssetConfig, assetID)
	}
	cfg, err := SanitizeConfig(&MarketConfig{
		Creator:       creator,
		AssetID:       assetID,
		RoyaltyRate:   royaltyRate,
		WaitingRounds: waitingRounds,
	})
	if err != nil {
		return err
	}
	if err := e.state.ConfigPut(cfg); err != nil {
		return err
	}
	e.emit(NewInitializedEvent(cfg))
	return nil
}

// SetupSale records or replaces the caller's listing. An open listing is
// replaced in place; a committed listing cannot be replaced while a buyer's
// payment is escrowed against it. No funds move.
func (e *Engine) SetupSale(seller types.Address, price, assetAmount uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if price == 0 || assetAmount == 0 {
		return fmt.Errorf("%w: price and asset amount must be positive", ErrMalformedRequest)
	}
	if price <= ServiceCost {
		return fmt.Errorf("%w: price %d must exceed service cost %d", ErrMalformedRequest, price, ServiceCost)
	}
	params, ok, err := e.state.AssetParams(cfg.AssetID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: asset %d does not exist", ErrInvalidAssetConfig, cfg.AssetID)
	}
	app := e.state.AppAddress()
	if params.Clawback != app {
		return fmt.Errorf("%w: clawback authority is not the marketplace", ErrInvalidAssetConfig)
	}
	if params.Freeze != app {
		return fmt.Errorf("%w: freeze authority is not the marketplace", ErrInvalidAssetConfig)
	}
	if err := checkAssetCustody(e.state, seller, cfg.AssetID, assetAmount); err != nil {
		return err
	}
	if existing, ok := e.state.ListingGet(seller); ok && existing.State() == SaleCommitted {
		return fmt.Errorf("%w: listing already committed, settle or refund first", ErrInvalidState)
	}
	listing, err := SanitizeListing(&Listing{Price: price, AssetAmount: assetAmount})
	if err != nil {
		return err
	}
	if err := e.state.ListingPut(seller, listing); err != nil {
		return err
	}
	e.emit(NewListedEvent(seller, listing))
	return nil
}

// Buy commits the buyer to the seller's listing. The dispatcher has already
// verified the companion payment is addressed to the marketplace account and
// applied it, so the price is escrowed the moment this succeeds. The listing
// must not already be committed: the first serialized Buy flips the approval
// flag and every later one fails this compare-and-set precondition.
func (e *Engine) Buy(buyer, seller types.Address, assetID, assetAmount, paid uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if assetID != cfg.AssetID {
		return fmt.Errorf("%w: asset %d is not the configured asset %d", ErrMalformedRequest, assetID, cfg.AssetID)
	}
	listing, ok := e.state.ListingGet(seller)
	if !ok {
		return fmt.Errorf("%w: seller %s has no listing", ErrInvalidState, seller)
	}
	if listing.State() != SaleListed {
		return fmt.Errorf("%w: listing already committed", ErrInvalidState)
	}
	if assetAmount != listing.AssetAmount {
		return fmt.Errorf("%w: asset amount %d does not match listed %d", ErrMalformedRequest, assetAmount, listing.AssetAmount)
	}
	if paid != listing.Price {
		return fmt.Errorf("%w: payment %d does not match listed price %d", ErrMalformedRequest, paid, listing.Price)
	}
	if err := checkAssetCustody(e.state, seller, cfg.AssetID, listing.AssetAmount); err != nil {
		return err
	}
	committed := listing.Clone()
	committed.Approved = 1
	committed.Buyer = buyer
	committed.SaleStartRound = e.state.CurrentRound()
	sanitized, err := SanitizeListing(committed)
	if err != nil {
		return err
	}
	if err := e.state.ListingPut(seller, sanitized); err != nil {
		return err
	}
	// The approval flag is keyed by buyer alone, not (buyer, seller). A
	// buyer committed to two sellers shares one flag: settling either sale
	// deletes it, and the other sale can then settle only through the
	// waiting window. Refunds for the other sale are likewise blocked.
	if err := e.state.BuyerApprovalPut(buyer, 1); err != nil {
		return err
	}
	e.emit(NewCommittedEvent(seller, buyer, sanitized))
	return nil
}

// ExecuteTransfer settles a committed sale: the asset moves from seller to
// buyer, the seller is paid the escrowed price net of the service cost and
// royalty, and the royalty accrues to the collected-fees pool. Anyone may
// invoke it once the preconditions hold; without the buyer's approval record
// it only succeeds after the configured waiting time has elapsed since
// commitment. Every arithmetic step is guarded before any transfer is issued.
func (e *Engine) ExecuteTransfer(seller types.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	listing, ok := e.state.ListingGet(seller)
	if !ok || listing.State() != SaleCommitted {
		return fmt.Errorf("%w: no committed sale for seller %s", ErrInvalidState, seller)
	}
	buyer := listing.Buyer
	if flag, ok := e.state.BuyerApprovalGet(buyer); !ok || flag != 1 {
		// Forced settlement: the buyer paid but withdrew cooperation.
		start := listing.SaleStartRound
		if cfg.WaitingRounds > math.MaxUint64-start {
			return fmt.Errorf("%w: waiting period never elapses", ErrInvalidState)
		}
		if e.state.CurrentRound() <= start+cfg.WaitingRounds {
			return fmt.Errorf("%w: waiting period not elapsed", ErrInvalidState)
		}
	}
	if listing.Price <= ServiceCost {
		return fmt.Errorf("%w: price %d does not cover service cost %d", ErrArithmeticUnderflow, listing.Price, ServiceCost)
	}
	if err := checkAssetCustody(e.state, seller, cfg.AssetID, listing.AssetAmount); err != nil {
		return err
	}
	net := listing.Price - ServiceCost
	var fee uint64
	if seller != cfg.Creator {
		if err := CheckFeeMultiply(net, cfg.RoyaltyRate); err != nil {
			return err
		}
		fee = ComputeRoyaltyFee(net, cfg.RoyaltyRate)
	}
	if err := CheckAdd(fee, net); err != nil {
		return err
	}
	if err := CheckAdd(cfg.CollectedFees, fee); err != nil {
		return err
	}
	if net <= fee {
		return fmt.Errorf("%w: proceeds %d do not exceed royalty %d", ErrArithmeticUnderflow, net, fee)
	}
	if err := e.state.SendAssetTransfer(seller, buyer, cfg.AssetID, listing.AssetAmount); err != nil {
		return err
	}
	if err := e.state.SendPayment(seller, net-fee); err != nil {
		return err
	}
	updated := cfg.Clone()
	updated.CollectedFees += fee
	if err := e.state.ConfigPut(updated); err != nil {
		return err
	}
	if err := e.state.ListingDelete(seller); err != nil {
		return err
	}
	if err := e.state.BuyerApprovalDelete(buyer); err != nil {
		return err
	}
	e.emit(NewSettledEvent(seller, buyer, listing, fee, net-fee))
	return nil
}

// Refund returns the escrowed payment to the committed buyer, minus one relay
// fee, and reopens the seller's listing. Only the buyer recorded at
// commitment may request it, and never when buyer and seller coincide.
func (e *Engine) Refund(caller, seller types.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	if _, err := e.config(); err != nil {
		return err
	}
	listing, ok := e.state.ListingGet(seller)
	if !ok || listing.State() != SaleCommitted {
		return fmt.Errorf("%w: no committed sale for seller %s", ErrInvalidState, seller)
	}
	if caller == seller {
		return fmt.Errorf("%w: seller cannot refund itself", ErrUnauthorized)
	}
	if caller != listing.Buyer {
		return fmt.Errorf("%w: only the committed buyer may request a refund", ErrUnauthorized)
	}
	if flag, ok := e.state.BuyerApprovalGet(listing.Buyer); !ok || flag != 1 {
		return fmt.Errorf("%w: buyer approval is not active", ErrInvalidState)
	}
	if listing.Price <= RelayFee {
		return fmt.Errorf("%w: escrowed amount %d does not cover relay fee %d", ErrArithmeticUnderflow, listing.Price, RelayFee)
	}
	if err := e.state.SendPayment(listing.Buyer, listing.Price-RelayFee); err != nil {
		return err
	}
	buyer := listing.Buyer
	reopened := listing.Clone()
	reopened.Approved = 0
	reopened.Buyer = types.ZeroAddress
	reopened.SaleStartRound = 0
	sanitized, err := SanitizeListing(reopened)
	if err != nil {
		return err
	}
	if err := e.state.ListingPut(seller, sanitized); err != nil {
		return err
	}
	if err := e.state.BuyerApprovalDelete(buyer); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(seller, buyer, listing.Price-RelayFee))
	return nil
}

// ClaimFees pays the accumulated royalties to the creator and resets the
// pool. It may fail when the marketplace reserve cannot cover the relay fee;
// funding the marketplace account and resubmitting corrects that.
func (e *Engine) ClaimFees(caller types.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if caller != cfg.Creator {
		return fmt.Errorf("%w: only the creator may claim fees", ErrUnauthorized)
	}
	if cfg.CollectedFees == 0 {
		return fmt.Errorf("%w: no fees collected", ErrInvalidState)
	}
	claimed := cfg.CollectedFees
	if err := e.state.SendPayment(cfg.Creator, claimed); err != nil {
		return err
	}
	updated := cfg.Clone()
	updated.CollectedFees = 0
	if err := e.state.ConfigPut(updated); err != nil {
		return err
	}
	e.emit(NewFeesClaimedEvent(cfg.Creator, claimed))
	return nil
}

// CloseOut clears any local marketplace state held against the account. The
// platform invokes it for lifecycle close-outs; a committed counterparty who
// closes out forfeits their approval record but never the escrowed funds,
// which remain claimable through ExecuteTransfer or Refund.
func (e *Engine) CloseOut(account types.Address) error {
	if err := e.guard(); err != nil {
		return err
	}
	if err := e.state.ListingDelete(account); err != nil {
		return err
	}
	return e.state.BuyerApprovalDelete(account)
}
