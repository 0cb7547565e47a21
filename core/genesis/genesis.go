package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"marketnet/core/state"
	"marketnet/core/types"
)

// Document is the on-disk genesis description: the escrow application
// account, the assets configured on the ledger, and the initial account
// balances and holdings. It is applied once, before the first group.
type Document struct {
	AppAddress string    `json:"appAddress"`
	Assets     []Asset   `json:"assets"`
	Accounts   []Account `json:"accounts"`
}

// Asset declares one asset and its authorities.
type Asset struct {
	ID            uint64 `json:"id"`
	Total         uint64 `json:"total"`
	Decimals      uint32 `json:"decimals"`
	DefaultFrozen bool   `json:"defaultFrozen"`
	Clawback      string `json:"clawback"`
	Freeze        string `json:"freeze"`
	UnitName      string `json:"unitName"`
}

// Account seeds one account. Holdings map decimal asset ids to amounts; a
// zero amount records an opt-in.
type Account struct {
	Address  string            `json:"address"`
	Balance  uint64            `json:"balance"`
	Holdings map[string]uint64 `json:"holdings,omitempty"`
}

// Load reads and validates a genesis document.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	doc := new(Document)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("genesis: parse %s: %w", path, err)
	}
	if doc.AppAddress == "" {
		return nil, fmt.Errorf("genesis: missing appAddress")
	}
	return doc, nil
}

// Apply seeds the ledger from the document. Calling it on a ledger that has
// already committed rounds is an error: genesis only runs on a fresh store.
func (d *Document) Apply(ledger *state.Ledger) error {
	if ledger.Round() != 0 {
		return fmt.Errorf("genesis: ledger already at round %d", ledger.Round())
	}
	appAddr, err := types.ParseAddress(d.AppAddress)
	if err != nil {
		return fmt.Errorf("genesis: appAddress: %w", err)
	}
	if err := ledger.SetAppAddress(appAddr); err != nil {
		return err
	}
	for _, asset := range d.Assets {
		clawback, err := types.ParseAddress(asset.Clawback)
		if err != nil {
			return fmt.Errorf("genesis: asset %d clawback: %w", asset.ID, err)
		}
		freeze, err := types.ParseAddress(asset.Freeze)
		if err != nil {
			return fmt.Errorf("genesis: asset %d freeze: %w", asset.ID, err)
		}
		params := &types.AssetParams{
			Total:         asset.Total,
			Decimals:      asset.Decimals,
			DefaultFrozen: asset.DefaultFrozen,
			Clawback:      clawback,
			Freeze:        freeze,
			UnitName:      asset.UnitName,
		}
		if err := ledger.PutAssetParams(asset.ID, params); err != nil {
			return err
		}
	}
	for _, entry := range d.Accounts {
		addr, err := types.ParseAddress(entry.Address)
		if err != nil {
			return fmt.Errorf("genesis: account %q: %w", entry.Address, err)
		}
		account := &types.Account{
			Balance:  entry.Balance,
			Holdings: make(map[uint64]uint64, len(entry.Holdings)),
		}
		for rawID, amount := range entry.Holdings {
			id, err := strconv.ParseUint(rawID, 10, 64)
			if err != nil {
				return fmt.Errorf("genesis: account %s holding %q: %w", addr, rawID, err)
			}
			account.Holdings[id] = amount
		}
		if err := ledger.PutAccount(addr, account); err != nil {
			return err
		}
	}
	return nil
}
