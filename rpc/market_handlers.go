package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"marketnet/core/types"
	"marketnet/native/market"
)

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single parameter object, got %d", len(req.Params))
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddressParam(name, value string) (types.Address, error) {
	addr, err := types.ParseAddress(value)
	if err != nil {
		return addr, fmt.Errorf("%s: %v", name, err)
	}
	return addr, nil
}

// configuredAssetID returns the asset the marketplace trades, once it has
// been initialized. The group builders use it to populate the foreign-assets
// declaration of the application call.
func (s *Server) configuredAssetID() (uint64, bool) {
	cfg, ok := s.node.Config()
	if !ok {
		return 0, false
	}
	return cfg.AssetID, true
}

func (s *Server) submit(w http.ResponseWriter, req *RPCRequest, group []types.Transaction) {
	if err := s.node.SubmitGroup(group); err != nil {
		writeSubmitError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"round": s.node.Round()})
}

type initializeParams struct {
	Creator       string `json:"creator"`
	AssetID       uint64 `json:"assetId"`
	RoyaltyRate   uint64 `json:"royaltyRate"`
	WaitingRounds uint64 `json:"waitingRounds"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params initializeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	creator, err := parseAddressParam("creator", params.Creator)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.submit(w, req, []types.Transaction{{
		Type:   types.TxAppCall,
		Sender: creator,
		Args: [][]byte{
			types.AddressArg(creator),
			types.Uint64Arg(params.AssetID),
			types.Uint64Arg(params.RoyaltyRate),
			types.Uint64Arg(params.WaitingRounds),
		},
		ForeignAssets: []uint64{params.AssetID},
	}})
}

type setupSaleParams struct {
	Seller      string `json:"seller"`
	Price       uint64 `json:"price"`
	AssetAmount uint64 `json:"assetAmount"`
}

func (s *Server) handleSetupSale(w http.ResponseWriter, req *RPCRequest) {
	var params setupSaleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	seller, err := parseAddressParam("seller", params.Seller)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	assetID, ok := s.configuredAssetID()
	if !ok {
		writeError(w, http.StatusOK, req.ID, codeServerError, market.ErrNotInitialized.Error(), nil)
		return
	}
	s.submit(w, req, []types.Transaction{{
		Type:   types.TxAppCall,
		Sender: seller,
		Args: [][]byte{
			[]byte(market.TagSetupSale),
			types.Uint64Arg(params.Price),
			types.Uint64Arg(params.AssetAmount),
		},
		ForeignAssets: []uint64{assetID},
	}})
}

type buyParams struct {
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	AssetID     uint64 `json:"assetId"`
	AssetAmount uint64 `json:"assetAmount"`
	Payment     uint64 `json:"payment"`
}

func (s *Server) handleBuy(w http.ResponseWriter, req *RPCRequest) {
	var params buyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddressParam("buyer", params.Buyer)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	seller, err := parseAddressParam("seller", params.Seller)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.submit(w, req, []types.Transaction{
		{
			Type:   types.TxAppCall,
			Sender: buyer,
			Args: [][]byte{
				[]byte(market.TagBuy),
				types.Uint64Arg(params.AssetID),
				types.Uint64Arg(params.AssetAmount),
			},
			Accounts:      []types.Address{seller},
			ForeignAssets: []uint64{params.AssetID},
		},
		{
			Type:     types.TxPayment,
			Sender:   buyer,
			Receiver: s.node.AppAddress(),
			Amount:   params.Payment,
		},
	})
}

type settleParams struct {
	Caller string `json:"caller"`
	Seller string `json:"seller"`
}

func (s *Server) settlementGroup(params settleParams, tag string) ([]types.Transaction, error) {
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		return nil, err
	}
	seller, err := parseAddressParam("seller", params.Seller)
	if err != nil {
		return nil, err
	}
	assetID, ok := s.configuredAssetID()
	if !ok {
		return nil, market.ErrNotInitialized
	}
	return []types.Transaction{{
		Type:          types.TxAppCall,
		Sender:        caller,
		Args:          [][]byte{[]byte(tag)},
		Accounts:      []types.Address{seller},
		ForeignAssets: []uint64{assetID},
	}}, nil
}

func (s *Server) handleExecuteTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params settleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	group, err := s.settlementGroup(params, market.TagExecuteTransfer)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.submit(w, req, group)
}

func (s *Server) handleRefund(w http.ResponseWriter, req *RPCRequest) {
	var params settleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	group, err := s.settlementGroup(params, market.TagRefund)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.submit(w, req, group)
}

type claimFeesParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handleClaimFees(w http.ResponseWriter, req *RPCRequest) {
	var params claimFeesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddressParam("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.submit(w, req, []types.Transaction{{
		Type:   types.TxAppCall,
		Sender: caller,
		Args:   [][]byte{[]byte(market.TagClaimFees)},
	}})
}

type optInParams struct {
	Account string `json:"account"`
	AssetID uint64 `json:"assetId"`
}

func (s *Server) handleOptInAsset(w http.ResponseWriter, req *RPCRequest) {
	var params optInParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := parseAddressParam("account", params.Account)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.submit(w, req, []types.Transaction{{
		Type:     types.TxAssetTransfer,
		Sender:   account,
		Receiver: account,
		AssetID:  params.AssetID,
	}})
}

// ConfigResponse is the JSON form of the marketplace configuration.
type ConfigResponse struct {
	Creator       string `json:"creator"`
	AssetID       uint64 `json:"assetId"`
	RoyaltyRate   uint64 `json:"royaltyRate"`
	WaitingRounds uint64 `json:"waitingRounds"`
	CollectedFees uint64 `json:"collectedFees"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, req *RPCRequest) {
	cfg, ok := s.node.Config()
	if !ok {
		writeError(w, http.StatusOK, req.ID, codeServerError, market.ErrNotInitialized.Error(), nil)
		return
	}
	writeResult(w, req.ID, ConfigResponse{
		Creator:       cfg.Creator.String(),
		AssetID:       cfg.AssetID,
		RoyaltyRate:   cfg.RoyaltyRate,
		WaitingRounds: cfg.WaitingRounds,
		CollectedFees: cfg.CollectedFees,
	})
}

// ListingResponse is the JSON form of one listing.
type ListingResponse struct {
	Seller         string `json:"seller"`
	Price          uint64 `json:"price"`
	AssetAmount    uint64 `json:"assetAmount"`
	State          string `json:"state"`
	Buyer          string `json:"buyer,omitempty"`
	SaleStartRound uint64 `json:"saleStartRound,omitempty"`
}

func listingResponse(seller types.Address, listing *market.Listing) ListingResponse {
	resp := ListingResponse{
		Seller:      seller.String(),
		Price:       listing.Price,
		AssetAmount: listing.AssetAmount,
		State:       listing.State().String(),
	}
	if listing.State() == market.SaleCommitted {
		resp.Buyer = listing.Buyer.String()
		resp.SaleStartRound = listing.SaleStartRound
	}
	return resp
}

type listingQuery struct {
	Seller string `json:"seller"`
}

func (s *Server) handleGetListing(w http.ResponseWriter, req *RPCRequest) {
	var params listingQuery
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	seller, err := parseAddressParam("seller", params.Seller)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	listing, ok := s.node.Listing(seller)
	if !ok {
		writeError(w, http.StatusOK, req.ID, codeServerError, fmt.Sprintf("no listing for seller %s", seller), nil)
		return
	}
	writeResult(w, req.ID, listingResponse(seller, listing))
}

func (s *Server) handleListListings(w http.ResponseWriter, req *RPCRequest) {
	sales := s.node.Listings()
	out := make([]ListingResponse, 0, len(sales))
	for _, sale := range sales {
		out = append(out, listingResponse(sale.Seller, sale.Listing))
	}
	writeResult(w, req.ID, out)
}

// AccountResponse is the JSON form of one account's balances.
type AccountResponse struct {
	Address  string            `json:"address"`
	Balance  uint64            `json:"balance"`
	Holdings map[string]uint64 `json:"holdings"`
}

type accountQuery struct {
	Address string `json:"address"`
}

func (s *Server) handleGetAccount(w http.ResponseWriter, req *RPCRequest) {
	var params accountQuery
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddressParam("address", params.Address)
	if err != nil {
		writeError(w, http.StatusOK, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account := s.node.Account(addr)
	holdings := make(map[string]uint64, len(account.Holdings))
	for id, amount := range account.Holdings {
		holdings[fmt.Sprintf("%d", id)] = amount
	}
	writeResult(w, req.ID, AccountResponse{
		Address:  addr.String(),
		Balance:  account.Balance,
		Holdings: holdings,
	})
}
