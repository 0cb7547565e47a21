package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"marketnet/core/types"
	"marketnet/native/market"
)

// Changeset stages every effect of one atomic group on top of the committed
// ledger. Reads see staged writes; nothing reaches the ledger or the database
// until Commit, and Discard drops the whole overlay. The changeset implements
// the state surface the marketplace engine runs against, so a failing call
// discards its own writes together with the rest of the group.
type Changeset struct {
	ledger *Ledger
	lead   *types.Transaction
	closed bool

	accounts     map[types.Address]*types.Account
	config       *market.MarketConfig
	configSet    bool
	listings     map[types.Address]*market.Listing
	listingDels  map[types.Address]bool
	approvals    map[types.Address]uint64
	approvalDels map[types.Address]bool
}

// Begin opens a changeset for one atomic group. The leading transaction is
// retained to enforce referenced-resource declarations: asset reads inside
// the group fail unless the lead declared the asset.
func (l *Ledger) Begin(lead *types.Transaction) *Changeset {
	return &Changeset{
		ledger:       l,
		lead:         lead,
		accounts:     make(map[types.Address]*types.Account),
		listings:     make(map[types.Address]*market.Listing),
		listingDels:  make(map[types.Address]bool),
		approvals:    make(map[types.Address]uint64),
		approvalDels: make(map[types.Address]bool),
	}
}

func (cs *Changeset) account(addr types.Address) *types.Account {
	if staged, ok := cs.accounts[addr]; ok {
		return staged
	}
	account := cs.ledger.accounts[addr].Clone()
	cs.accounts[addr] = account
	return account
}

// ConfigGet returns the marketplace configuration visible to the group.
func (cs *Changeset) ConfigGet() (*market.MarketConfig, bool) {
	if cs.configSet {
		return cs.config.Clone(), true
	}
	return cs.ledger.Config()
}

// ConfigPut stages a configuration write.
func (cs *Changeset) ConfigPut(cfg *market.MarketConfig) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	cs.config = cfg.Clone()
	cs.configSet = true
	return nil
}

// ListingGet returns the listing for the seller as the group sees it.
func (cs *Changeset) ListingGet(seller types.Address) (*market.Listing, bool) {
	if cs.listingDels[seller] {
		return nil, false
	}
	if staged, ok := cs.listings[seller]; ok {
		return staged.Clone(), true
	}
	return cs.ledger.Listing(seller)
}

// ListingPut stages a listing write.
func (cs *Changeset) ListingPut(seller types.Address, listing *market.Listing) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	cs.listings[seller] = listing.Clone()
	delete(cs.listingDels, seller)
	return nil
}

// ListingDelete stages removal of the seller's listing.
func (cs *Changeset) ListingDelete(seller types.Address) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	delete(cs.listings, seller)
	cs.listingDels[seller] = true
	return nil
}

// BuyerApprovalGet returns the buyer's approval flag as the group sees it.
func (cs *Changeset) BuyerApprovalGet(buyer types.Address) (uint64, bool) {
	if cs.approvalDels[buyer] {
		return 0, false
	}
	if staged, ok := cs.approvals[buyer]; ok {
		return staged, true
	}
	flag, ok := cs.ledger.approvals[buyer]
	return flag, ok
}

// BuyerApprovalPut stages an approval flag write.
func (cs *Changeset) BuyerApprovalPut(buyer types.Address, flag uint64) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	cs.approvals[buyer] = flag
	delete(cs.approvalDels, buyer)
	return nil
}

// BuyerApprovalDelete stages removal of the buyer's approval flag.
func (cs *Changeset) BuyerApprovalDelete(buyer types.Address) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	delete(cs.approvals, buyer)
	cs.approvalDels[buyer] = true
	return nil
}

func (cs *Changeset) requireReferenced(assetID uint64) error {
	if cs.lead == nil || !cs.lead.ReferencesAsset(assetID) {
		return fmt.Errorf("%w: asset %d", ErrAssetNotReferenced, assetID)
	}
	return nil
}

// AssetHolding returns the account's holding of the asset. The asset must be
// declared in the leading transaction's foreign-assets list.
func (cs *Changeset) AssetHolding(account types.Address, assetID uint64) (uint64, bool, error) {
	if err := cs.requireReferenced(assetID); err != nil {
		return 0, false, err
	}
	amount, ok := cs.account(account).HoldingOf(assetID)
	return amount, ok, nil
}

// AssetParams returns the asset's parameters. The asset must be declared in
// the leading transaction's foreign-assets list.
func (cs *Changeset) AssetParams(assetID uint64) (*types.AssetParams, bool, error) {
	if err := cs.requireReferenced(assetID); err != nil {
		return nil, false, err
	}
	params, ok := cs.ledger.assets[assetID]
	return params.Clone(), ok, nil
}

// AppAddress returns the escrow application account.
func (cs *Changeset) AppAddress() types.Address { return cs.ledger.appAddress }

// CurrentRound returns the round the group executes in, one past the last
// committed round.
func (cs *Changeset) CurrentRound() uint64 { return cs.ledger.round + 1 }

// SendPayment issues an inner payment from the application account. The
// relay fee for the inner transaction comes out of the application balance on
// top of the amount.
func (cs *Changeset) SendPayment(to types.Address, amount uint64) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	app := cs.account(cs.ledger.appAddress)
	if app.Balance < amount || app.Balance-amount < market.RelayFee {
		return fmt.Errorf("%w: application balance %d short of %d plus relay fee", ErrInsufficientFunds, app.Balance, amount)
	}
	app.Balance -= amount + market.RelayFee
	cs.account(to).Balance += amount
	return nil
}

// SendAssetTransfer issues an inner asset transfer signed with the
// application's clawback authority, moving the asset between the named
// accounts regardless of freeze status. The zero-amount self-transfer form
// opts the account in to the asset. The relay fee comes out of the
// application balance.
func (cs *Changeset) SendAssetTransfer(from, to types.Address, assetID, amount uint64) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	if err := cs.requireReferenced(assetID); err != nil {
		return err
	}
	if _, ok := cs.ledger.assets[assetID]; !ok {
		return fmt.Errorf("%w: asset %d", ErrUnknownAsset, assetID)
	}
	app := cs.account(cs.ledger.appAddress)
	if app.Balance < market.RelayFee {
		return fmt.Errorf("%w: application balance %d short of relay fee", ErrInsufficientFunds, app.Balance)
	}
	app.Balance -= market.RelayFee

	if amount == 0 && from == to {
		receiver := cs.account(to)
		if _, ok := receiver.Holdings[assetID]; !ok {
			receiver.Holdings[assetID] = 0
		}
		return nil
	}
	sender := cs.account(from)
	held, ok := sender.HoldingOf(assetID)
	if !ok {
		return fmt.Errorf("%w: sender %s, asset %d", ErrNotOptedIn, from, assetID)
	}
	if held < amount {
		return fmt.Errorf("%w: holding %d of asset %d, need %d", ErrInsufficientFunds, held, assetID, amount)
	}
	receiver := cs.account(to)
	if _, ok := receiver.HoldingOf(assetID); !ok {
		return fmt.Errorf("%w: receiver %s, asset %d", ErrNotOptedIn, to, assetID)
	}
	sender.Holdings[assetID] = held - amount
	receiver.Holdings[assetID] += amount
	return nil
}

// ApplyTransaction stages the value effects of one group member: the relay
// fee for the member itself plus, for payments and asset transfers, the
// movement the member describes. Application-call effects are produced by the
// marketplace dispatcher, not here.
func (cs *Changeset) ApplyTransaction(tx *types.Transaction) error {
	if cs.closed {
		return ErrChangesetClosed
	}
	sender := cs.account(tx.Sender)
	if sender.Balance < market.RelayFee {
		return fmt.Errorf("%w: sender %s cannot pay relay fee", ErrInsufficientFunds, tx.Sender)
	}
	sender.Balance -= market.RelayFee

	switch tx.Type {
	case types.TxAppCall:
		return nil
	case types.TxPayment:
		if sender.Balance < tx.Amount {
			return fmt.Errorf("%w: sender %s balance %d short of %d", ErrInsufficientFunds, tx.Sender, sender.Balance, tx.Amount)
		}
		sender.Balance -= tx.Amount
		cs.account(tx.Receiver).Balance += tx.Amount
		return nil
	case types.TxAssetTransfer:
		return cs.applyAssetTransfer(tx, sender)
	default:
		return fmt.Errorf("state: unsupported transaction type %d", tx.Type)
	}
}

func (cs *Changeset) applyAssetTransfer(tx *types.Transaction, sender *types.Account) error {
	params, ok := cs.ledger.assets[tx.AssetID]
	if !ok {
		return fmt.Errorf("%w: asset %d", ErrUnknownAsset, tx.AssetID)
	}
	if tx.Amount == 0 && tx.Sender == tx.Receiver {
		// Opt-in: record a zero holding if none exists yet.
		if _, ok := sender.HoldingOf(tx.AssetID); !ok {
			sender.Holdings[tx.AssetID] = 0
		}
		return nil
	}
	if params.DefaultFrozen {
		return fmt.Errorf("%w: asset %d", ErrFrozenAsset, tx.AssetID)
	}
	held, ok := sender.HoldingOf(tx.AssetID)
	if !ok {
		return fmt.Errorf("%w: sender %s, asset %d", ErrNotOptedIn, tx.Sender, tx.AssetID)
	}
	if held < tx.Amount {
		return fmt.Errorf("%w: holding %d of asset %d, need %d", ErrInsufficientFunds, held, tx.AssetID, tx.Amount)
	}
	receiver := cs.account(tx.Receiver)
	if _, ok := receiver.HoldingOf(tx.AssetID); !ok {
		return fmt.Errorf("%w: receiver %s, asset %d", ErrNotOptedIn, tx.Receiver, tx.AssetID)
	}
	sender.Holdings[tx.AssetID] = held - tx.Amount
	receiver.Holdings[tx.AssetID] += tx.Amount
	return nil
}

// Commit folds the staged overlay into the ledger, advances the round, and
// persists every touched record. The changeset cannot be used afterwards.
func (cs *Changeset) Commit() error {
	if cs.closed {
		return ErrChangesetClosed
	}
	cs.closed = true
	l := cs.ledger

	for addr, account := range cs.accounts {
		raw, err := json.Marshal(account)
		if err != nil {
			return fmt.Errorf("state: encode account %s: %w", addr, err)
		}
		if err := l.db.Put(accountKey(addr), raw); err != nil {
			return err
		}
		l.accounts[addr] = account
	}
	if cs.configSet {
		raw, err := json.Marshal(cs.config)
		if err != nil {
			return fmt.Errorf("state: encode market config: %w", err)
		}
		if err := l.db.Put(keyConfig, raw); err != nil {
			return err
		}
		l.config = cs.config
	}
	for seller := range cs.listingDels {
		if err := l.db.Delete(listingKey(seller)); err != nil {
			return err
		}
		delete(l.listings, seller)
	}
	for seller, listing := range cs.listings {
		raw, err := json.Marshal(listing)
		if err != nil {
			return fmt.Errorf("state: encode listing for %s: %w", seller, err)
		}
		if err := l.db.Put(listingKey(seller), raw); err != nil {
			return err
		}
		l.listings[seller] = listing
	}
	for buyer := range cs.approvalDels {
		if err := l.db.Delete(approvalKey(buyer)); err != nil {
			return err
		}
		delete(l.approvals, buyer)
	}
	for buyer, flag := range cs.approvals {
		raw := make([]byte, 8)
		binary.BigEndian.PutUint64(raw, flag)
		if err := l.db.Put(approvalKey(buyer), raw); err != nil {
			return err
		}
		l.approvals[buyer] = flag
	}

	l.round++
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, l.round)
	return l.db.Put(keyRound, raw)
}

// Discard drops the staged overlay without touching the ledger.
func (cs *Changeset) Discard() {
	cs.closed = true
}
