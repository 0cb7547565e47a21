package market

import (
	"fmt"

	"marketnet/core/types"
)

// MarketConfig is the single marketplace-wide configuration, created exactly
// once at initialization. All fields except CollectedFees are write-once.
type MarketConfig struct {
	Creator       types.Address
	AssetID       uint64
	RoyaltyRate   uint64
	WaitingRounds uint64
	CollectedFees uint64
}

// Clone returns a copy of the configuration.
func (c *MarketConfig) Clone() *MarketConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// SanitizeConfig validates a configuration, returning a cloned instance. The
// royalty rate must lie in (0, 1000] and the creator must be a real account.
func SanitizeConfig(c *MarketConfig) (*MarketConfig, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil config", ErrMalformedRequest)
	}
	if c.Creator.IsZero() {
		return nil, fmt.Errorf("%w: creator must not be the zero address", ErrMalformedRequest)
	}
	if c.RoyaltyRate == 0 || c.RoyaltyRate > RateDenominator {
		return nil, fmt.Errorf("%w: royalty rate %d out of (0, %d]", ErrMalformedRequest, c.RoyaltyRate, RateDenominator)
	}
	return c.Clone(), nil
}

// SaleState is the explicit tagged variant of a seller's escrow status. The
// absence of a Listing is SaleNone; a stored Listing is either open for
// commitment or committed with an escrowed payment.
type SaleState uint8

const (
	SaleNone SaleState = iota
	SaleListed
	SaleCommitted
)

// String returns a stable name for the state.
func (s SaleState) String() string {
	switch s {
	case SaleNone:
		return "none"
	case SaleListed:
		return "listed"
	case SaleCommitted:
		return "committed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Listing is a seller's active offer, stored against the seller's account.
// At most one listing exists per seller. Buyer and SaleStartRound are only
// meaningful while the listing is committed.
type Listing struct {
	Price          uint64
	AssetAmount    uint64
	Approved       uint64
	Buyer          types.Address
	SaleStartRound uint64
}

// Clone returns a copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// State derives the tagged sale state from the stored flags.
func (l *Listing) State() SaleState {
	switch {
	case l == nil:
		return SaleNone
	case l.Approved == 1:
		return SaleCommitted
	default:
		return SaleListed
	}
}

// SanitizeListing validates a listing before it is persisted. Committed
// listings must name a buyer; open listings must not.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil listing", ErrMalformedRequest)
	}
	if l.Price == 0 || l.AssetAmount == 0 {
		return nil, fmt.Errorf("%w: price and asset amount must be positive", ErrMalformedRequest)
	}
	if l.Approved > 1 {
		return nil, fmt.Errorf("%w: approval flag %d out of range", ErrMalformedRequest, l.Approved)
	}
	if l.Approved == 1 && l.Buyer.IsZero() {
		return nil, fmt.Errorf("%w: committed listing without buyer", ErrInvalidState)
	}
	if l.Approved == 0 && !l.Buyer.IsZero() {
		return nil, fmt.Errorf("%w: open listing with recorded buyer", ErrInvalidState)
	}
	return l.Clone(), nil
}
