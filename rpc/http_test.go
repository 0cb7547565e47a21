package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"marketnet/core"
	"marketnet/core/state"
	"marketnet/core/types"
	"marketnet/storage"
)

const (
	testToken   = "test-rpc-token"
	testAssetID = uint64(7)

	appHex     = "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	creatorHex = "0101010101010101010101010101010101010101"
	sellerHex  = "0202020202020202020202020202020202020202"
	buyerHex   = "0303030303030303030303030303030303030303"
)

func mustAddr(t *testing.T, hexAddr string) types.Address {
	t.Helper()
	addr, err := types.ParseAddress(hexAddr)
	require.NoError(t, err)
	return addr
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ledger, err := state.NewLedger(storage.NewMemDB())
	require.NoError(t, err)
	app := mustAddr(t, appHex)
	require.NoError(t, ledger.SetAppAddress(app))
	require.NoError(t, ledger.PutAssetParams(testAssetID, &types.AssetParams{
		Total:         1000,
		DefaultFrozen: true,
		Clawback:      app,
		Freeze:        app,
		UnitName:      "WARE",
	}))
	require.NoError(t, ledger.PutAccount(app, &types.Account{
		Balance:  1_000_000,
		Holdings: map[uint64]uint64{testAssetID: 0},
	}))
	require.NoError(t, ledger.PutAccount(mustAddr(t, creatorHex), &types.Account{Balance: 200_000}))
	require.NoError(t, ledger.PutAccount(mustAddr(t, sellerHex), &types.Account{
		Balance:  50_000,
		Holdings: map[uint64]uint64{testAssetID: 10},
	}))
	require.NoError(t, ledger.PutAccount(mustAddr(t, buyerHex), &types.Account{Balance: 100_000}))

	t.Setenv("MARKET_RPC_TOKEN", testToken)
	server := NewServer(core.NewNode(ledger, nil, nil, nil), "MARKET_RPC_TOKEN", nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func call(t *testing.T, ts *httptest.Server, method string, params interface{}, token string) *RPCResponse {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := &RPCResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return out
}

func callOK(t *testing.T, ts *httptest.Server, method string, params interface{}) json.RawMessage {
	t.Helper()
	resp := call(t, ts, method, params, testToken)
	require.Nil(t, resp.Error, "method %s: %+v", method, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	return raw
}

func initializeMarket(t *testing.T, ts *httptest.Server, waiting uint64) {
	t.Helper()
	callOK(t, ts, "market_initialize", initializeParams{
		Creator:       creatorHex,
		AssetID:       testAssetID,
		RoyaltyRate:   50,
		WaitingRounds: waiting,
	})
}

func TestWriteMethodsRequireBearerToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp := call(t, ts, "market_setupSale", setupSaleParams{Seller: sellerHex, Price: 10_000, AssetAmount: 1}, "")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = call(t, ts, "market_setupSale", setupSaleParams{Seller: sellerHex, Price: 10_000, AssetAmount: 1}, "wrong-token")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Queries stay open.
	resp = call(t, ts, "market_getRound", nil, "")
	require.Nil(t, resp.Error)
}

func TestUnknownMethod(t *testing.T) {
	_, ts := newTestServer(t)
	resp := call(t, ts, "market_doesNotExist", nil, testToken)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestSaleLifecycleOverRPC(t *testing.T) {
	_, ts := newTestServer(t)

	initializeMarket(t, ts, 10)

	var cfg ConfigResponse
	require.NoError(t, json.Unmarshal(callOK(t, ts, "market_getConfig", nil), &cfg))
	require.Equal(t, creatorHex, cfg.Creator)
	require.Equal(t, testAssetID, cfg.AssetID)

	callOK(t, ts, "market_optInAsset", optInParams{Account: buyerHex, AssetID: testAssetID})
	callOK(t, ts, "market_setupSale", setupSaleParams{Seller: sellerHex, Price: 10_000, AssetAmount: 3})

	var listing ListingResponse
	require.NoError(t, json.Unmarshal(callOK(t, ts, "market_getListing", listingQuery{Seller: sellerHex}), &listing))
	require.Equal(t, "listed", listing.State)

	callOK(t, ts, "market_buy", buyParams{
		Buyer:       buyerHex,
		Seller:      sellerHex,
		AssetID:     testAssetID,
		AssetAmount: 3,
		Payment:     10_000,
	})
	require.NoError(t, json.Unmarshal(callOK(t, ts, "market_getListing", listingQuery{Seller: sellerHex}), &listing))
	require.Equal(t, "committed", listing.State)
	require.Equal(t, buyerHex, listing.Buyer)

	callOK(t, ts, "market_executeTransfer", settleParams{Caller: sellerHex, Seller: sellerHex})

	var account AccountResponse
	require.NoError(t, json.Unmarshal(callOK(t, ts, "market_getAccount", accountQuery{Address: buyerHex}), &account))
	require.Equal(t, uint64(3), account.Holdings[fmt.Sprintf("%d", testAssetID)])

	require.NoError(t, json.Unmarshal(callOK(t, ts, "market_getConfig", nil), &cfg))
	require.Equal(t, uint64(400), cfg.CollectedFees)

	callOK(t, ts, "market_claimFees", claimFeesParams{Caller: creatorHex})
	require.NoError(t, json.Unmarshal(callOK(t, ts, "market_getConfig", nil), &cfg))
	require.Equal(t, uint64(0), cfg.CollectedFees)

	var listings []ListingResponse
	require.NoError(t, json.Unmarshal(callOK(t, ts, "market_listListings", nil), &listings))
	require.Empty(t, listings)
}

func TestRejectedOperationsSurfaceErrorCodes(t *testing.T) {
	_, ts := newTestServer(t)
	initializeMarket(t, ts, 10)

	// Price at or below the relay cost of settlement is malformed.
	resp := call(t, ts, "market_setupSale", setupSaleParams{Seller: sellerHex, Price: 2_000, AssetAmount: 1}, testToken)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	// Claiming fees from a non-creator account is unauthorized.
	resp = call(t, ts, "market_claimFees", claimFeesParams{Caller: sellerHex}, testToken)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Malformed addresses are rejected before a group is built.
	resp = call(t, ts, "market_getListing", listingQuery{Seller: "zz"}, "")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestMetricsEndpointExposed(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
