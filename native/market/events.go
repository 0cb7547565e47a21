package market

import (
	"strconv"

	"marketnet/core/types"
)

const (
	EventTypeInitialized = "market.initialized"
	EventTypeListed      = "market.listed"
	EventTypeCommitted   = "market.committed"
	EventTypeSettled     = "market.settled"
	EventTypeRefunded    = "market.refunded"
	EventTypeFeesClaimed = "market.fees_claimed"
)

// NewInitializedEvent returns the canonical payload emitted once at
// marketplace creation.
func NewInitializedEvent(cfg *MarketConfig) *types.Event {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["creator"] = cfg.Creator.String()
		attrs["assetId"] = strconv.FormatUint(cfg.AssetID, 10)
		attrs["royaltyRate"] = strconv.FormatUint(cfg.RoyaltyRate, 10)
		attrs["waitingRounds"] = strconv.FormatUint(cfg.WaitingRounds, 10)
	}
	return &types.Event{Type: EventTypeInitialized, Attributes: attrs}
}

// NewListedEvent returns the payload emitted when a seller opens or replaces
// a listing.
func NewListedEvent(seller types.Address, listing *Listing) *types.Event {
	attrs := map[string]string{"seller": seller.String()}
	if listing != nil {
		attrs["price"] = strconv.FormatUint(listing.Price, 10)
		attrs["assetAmount"] = strconv.FormatUint(listing.AssetAmount, 10)
	}
	return &types.Event{Type: EventTypeListed, Attributes: attrs}
}

// NewCommittedEvent returns the payload emitted when a buyer's payment is
// escrowed against a listing.
func NewCommittedEvent(seller, buyer types.Address, listing *Listing) *types.Event {
	attrs := map[string]string{
		"seller": seller.String(),
		"buyer":  buyer.String(),
	}
	if listing != nil {
		attrs["price"] = strconv.FormatUint(listing.Price, 10)
		attrs["saleStartRound"] = strconv.FormatUint(listing.SaleStartRound, 10)
	}
	return &types.Event{Type: EventTypeCommitted, Attributes: attrs}
}

// NewSettledEvent returns the payload emitted when a sale settles: the asset
// moved, the seller was paid, and the royalty accrued.
func NewSettledEvent(seller, buyer types.Address, listing *Listing, fee, proceeds uint64) *types.Event {
	attrs := map[string]string{
		"seller":   seller.String(),
		"buyer":    buyer.String(),
		"royalty":  strconv.FormatUint(fee, 10),
		"proceeds": strconv.FormatUint(proceeds, 10),
	}
	if listing != nil {
		attrs["price"] = strconv.FormatUint(listing.Price, 10)
		attrs["assetAmount"] = strconv.FormatUint(listing.AssetAmount, 10)
	}
	return &types.Event{Type: EventTypeSettled, Attributes: attrs}
}

// NewRefundedEvent returns the payload emitted when the buyer reclaims the
// escrowed payment.
func NewRefundedEvent(seller, buyer types.Address, refunded uint64) *types.Event {
	return &types.Event{Type: EventTypeRefunded, Attributes: map[string]string{
		"seller":   seller.String(),
		"buyer":    buyer.String(),
		"refunded": strconv.FormatUint(refunded, 10),
	}}
}

// NewFeesClaimedEvent returns the payload emitted when the creator drains the
// collected royalty pool.
func NewFeesClaimedEvent(creator types.Address, amount uint64) *types.Event {
	return &types.Event{Type: EventTypeFeesClaimed, Attributes: map[string]string{
		"creator": creator.String(),
		"amount":  strconv.FormatUint(amount, 10),
	}}
}
