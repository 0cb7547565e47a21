package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"marketnet/core/types"
	"marketnet/native/market"
	"marketnet/storage"
)

// Storage key layout. Every durable record is a JSON payload under a short
// ASCII prefix so IteratePrefix can rebuild one table at a time on startup.
var (
	keyRound      = []byte("meta/round")
	keyAppAddress = []byte("meta/app")
	keyConfig     = []byte("market/config")

	prefixAccount  = []byte("acct/")
	prefixAsset    = []byte("asset/")
	prefixListing  = []byte("listing/")
	prefixApproval = []byte("approval/")
)

var (
	// ErrAssetNotReferenced is returned when an application call touches
	// asset state without declaring the asset in its foreign-assets list.
	ErrAssetNotReferenced = errors.New("state: asset not declared in foreign assets")

	// ErrUnknownAsset is returned for transfers of an asset the ledger has
	// no parameters for.
	ErrUnknownAsset = errors.New("state: unknown asset")

	// ErrNotOptedIn is returned when an asset transfer targets an account
	// that has not opted in to the asset.
	ErrNotOptedIn = errors.New("state: receiver not opted in to asset")

	// ErrInsufficientFunds is returned when a payment or transfer exceeds
	// the sender's balance or holding.
	ErrInsufficientFunds = errors.New("state: insufficient funds")

	// ErrFrozenAsset is returned when a holder-signed transfer attempts to
	// move a frozen asset. Only the clawback authority moves such assets.
	ErrFrozenAsset = errors.New("state: asset frozen for holder")

	// ErrChangesetClosed is returned when a committed or discarded
	// changeset is used again.
	ErrChangesetClosed = errors.New("state: changeset already closed")
)

// Ledger is the single-process host ledger the marketplace runs on. It tracks
// account balances, asset holdings and the marketplace tables, assigns each
// applied atomic group a strictly increasing round number, and persists
// committed state through the configured database. All mutation happens
// through a Changeset; the Ledger itself only ever exposes committed state.
type Ledger struct {
	db storage.Database

	round      uint64
	appAddress types.Address

	accounts  map[types.Address]*types.Account
	assets    map[uint64]*types.AssetParams
	config    *market.MarketConfig
	listings  map[types.Address]*market.Listing
	approvals map[types.Address]uint64
}

// NewLedger opens a ledger backed by the database, loading any previously
// committed state.
func NewLedger(db storage.Database) (*Ledger, error) {
	l := &Ledger{
		db:        db,
		accounts:  make(map[types.Address]*types.Account),
		assets:    make(map[uint64]*types.AssetParams),
		listings:  make(map[types.Address]*market.Listing),
		approvals: make(map[types.Address]uint64),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	if raw, err := l.db.Get(keyRound); err == nil {
		if len(raw) != 8 {
			return fmt.Errorf("state: corrupt round record (%d bytes)", len(raw))
		}
		l.round = binary.BigEndian.Uint64(raw)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("state: load round: %w", err)
	}
	if raw, err := l.db.Get(keyAppAddress); err == nil {
		addr, err := types.DecodeAddressArg(raw)
		if err != nil {
			return fmt.Errorf("state: corrupt app address record: %w", err)
		}
		l.appAddress = addr
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("state: load app address: %w", err)
	}
	if raw, err := l.db.Get(keyConfig); err == nil {
		cfg := new(market.MarketConfig)
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("state: corrupt market config: %w", err)
		}
		l.config = cfg
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("state: load market config: %w", err)
	}

	err := l.db.IteratePrefix(prefixAccount, func(key, value []byte) error {
		addr, err := types.ParseAddress(string(key[len(prefixAccount):]))
		if err != nil {
			return fmt.Errorf("state: corrupt account key %q: %w", key, err)
		}
		account := new(types.Account)
		if err := json.Unmarshal(value, account); err != nil {
			return fmt.Errorf("state: corrupt account record for %s: %w", addr, err)
		}
		if account.Holdings == nil {
			account.Holdings = make(map[uint64]uint64)
		}
		l.accounts[addr] = account
		return nil
	})
	if err != nil {
		return err
	}
	err = l.db.IteratePrefix(prefixAsset, func(key, value []byte) error {
		var id uint64
		if _, err := fmt.Sscanf(string(key[len(prefixAsset):]), "%d", &id); err != nil {
			return fmt.Errorf("state: corrupt asset key %q: %w", key, err)
		}
		params := new(types.AssetParams)
		if err := json.Unmarshal(value, params); err != nil {
			return fmt.Errorf("state: corrupt asset record %d: %w", id, err)
		}
		l.assets[id] = params
		return nil
	})
	if err != nil {
		return err
	}
	err = l.db.IteratePrefix(prefixListing, func(key, value []byte) error {
		addr, err := types.ParseAddress(string(key[len(prefixListing):]))
		if err != nil {
			return fmt.Errorf("state: corrupt listing key %q: %w", key, err)
		}
		listing := new(market.Listing)
		if err := json.Unmarshal(value, listing); err != nil {
			return fmt.Errorf("state: corrupt listing record for %s: %w", addr, err)
		}
		l.listings[addr] = listing
		return nil
	})
	if err != nil {
		return err
	}
	return l.db.IteratePrefix(prefixApproval, func(key, value []byte) error {
		addr, err := types.ParseAddress(string(key[len(prefixApproval):]))
		if err != nil {
			return fmt.Errorf("state: corrupt approval key %q: %w", key, err)
		}
		if len(value) != 8 {
			return fmt.Errorf("state: corrupt approval record for %s (%d bytes)", addr, len(value))
		}
		l.approvals[addr] = binary.BigEndian.Uint64(value)
		return nil
	})
}

func accountKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixAccount...), addr.String()...)
}

func assetKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixAsset, id))
}

func listingKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixListing...), addr.String()...)
}

func approvalKey(addr types.Address) []byte {
	return append(append([]byte{}, prefixApproval...), addr.String()...)
}

// SetAppAddress records the escrow application account. Genesis calls this
// once before the first group is applied.
func (l *Ledger) SetAppAddress(addr types.Address) error {
	l.appAddress = addr
	return l.db.Put(keyAppAddress, types.AddressArg(addr))
}

// AppAddress returns the escrow application account.
func (l *Ledger) AppAddress() types.Address { return l.appAddress }

// Round returns the round number of the last committed group.
func (l *Ledger) Round() uint64 { return l.round }

// PutAccount stores an account directly, bypassing group application. Genesis
// uses it to seed balances and holdings.
func (l *Ledger) PutAccount(addr types.Address, account *types.Account) error {
	clone := account.Clone()
	raw, err := json.Marshal(clone)
	if err != nil {
		return fmt.Errorf("state: encode account %s: %w", addr, err)
	}
	if err := l.db.Put(accountKey(addr), raw); err != nil {
		return err
	}
	l.accounts[addr] = clone
	return nil
}

// PutAssetParams stores asset parameters directly. Genesis uses it to declare
// the assets that exist on the ledger.
func (l *Ledger) PutAssetParams(id uint64, params *types.AssetParams) error {
	clone := params.Clone()
	raw, err := json.Marshal(clone)
	if err != nil {
		return fmt.Errorf("state: encode asset %d: %w", id, err)
	}
	if err := l.db.Put(assetKey(id), raw); err != nil {
		return err
	}
	l.assets[id] = clone
	return nil
}

// Account returns a copy of the committed account state. Unknown addresses
// yield an empty account.
func (l *Ledger) Account(addr types.Address) *types.Account {
	return l.accounts[addr].Clone()
}

// AssetParams returns a copy of the committed asset parameters.
func (l *Ledger) AssetParams(id uint64) (*types.AssetParams, bool) {
	params, ok := l.assets[id]
	return params.Clone(), ok
}

// Config returns a copy of the committed marketplace configuration.
func (l *Ledger) Config() (*market.MarketConfig, bool) {
	if l.config == nil {
		return nil, false
	}
	return l.config.Clone(), true
}

// Listing returns a copy of the committed listing for the seller.
func (l *Ledger) Listing(seller types.Address) (*market.Listing, bool) {
	listing, ok := l.listings[seller]
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

// Listings returns the committed listings keyed by seller, in deterministic
// seller order.
func (l *Ledger) Listings() []ListedSale {
	out := make([]ListedSale, 0, len(l.listings))
	for seller, listing := range l.listings {
		out = append(out, ListedSale{Seller: seller, Listing: listing.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seller.String() < out[j].Seller.String()
	})
	return out
}

// ListedSale pairs a listing with the seller that owns it.
type ListedSale struct {
	Seller  types.Address
	Listing *market.Listing
}
