package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"nftmarket/core"
	"nftmarket/crypto"
	"nftmarket/indexer"
	"nftmarket/storage"
)

const (
	testJWTSecret = "rpc-test-secret-value"
	testIssuer    = "rpc-tests"
)

func testAddr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

var (
	alice = testAddr(0x01)
	bob   = testAddr(0x02)
)

type stubHistory struct {
	sales     []indexer.Sale
	events    []indexer.EventRecord
	eventType string
	asset     string
	limit     int
}

func (s *stubHistory) Sales(_ context.Context, assetID string, limit int) ([]indexer.Sale, error) {
	s.asset, s.limit = assetID, limit
	return s.sales, nil
}

func (s *stubHistory) Events(_ context.Context, eventType, assetID string, limit int) ([]indexer.EventRecord, error) {
	s.eventType, s.asset, s.limit = eventType, assetID, limit
	return s.events, nil
}

type testEnv struct {
	node    *core.Node
	server  *Server
	handler http.Handler
	history *stubHistory
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db)
	require.NoError(t, err)
	require.NoError(t, node.SetMinter(context.Background(), alice))
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testJWTSecret
		cfg.JWTIssuer = testIssuer
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1000
		cfg.Burst = 1000
	}
	history := &stubHistory{}
	srv, err := NewServer(node, history, cfg, nil)
	require.NoError(t, err)
	return &testEnv{node: node, server: srv, handler: srv.Handler(), history: history}
}

func (env *testEnv) token(t *testing.T, who [20]byte) string {
	t.Helper()
	tok, err := IssueToken(testJWTSecret, testIssuer, who, time.Hour)
	require.NoError(t, err)
	return tok
}

func (env *testEnv) call(t *testing.T, token, method string, params interface{}) (json.RawMessage, *RPCError, int) {
	t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Result, resp.Error, rec.Code
}

func addrString(a [20]byte) string { return crypto.FromBytes20(a).String() }

func (env *testEnv) mintListed(t *testing.T, assetID string, price string) {
	t.Helper()
	_, rpcErr, _ := env.call(t, env.token(t, alice), "market_mint", map[string]interface{}{
		"assetId": assetID,
		"name":    "Sunrise",
		"ask":     map[string]string{"denom": "token", "amount": price},
	})
	require.Nil(t, rpcErr)
}

func TestPlaceBidCrossesOverRPC(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.mintListed(t, "123", "5")
	require.NoError(t, env.node.Credit(context.Background(), bob, "token", big.NewInt(10)))
	bobToken := env.token(t, bob)

	raw, rpcErr, _ := env.call(t, bobToken, "market_placeBid", map[string]interface{}{
		"assetId": "123",
		"amount":  map[string]string{"denom": "token", "amount": "3"},
		"bidder":  addrString(bob),
	})
	require.Nil(t, rpcErr)
	var first PlaceBidResult
	require.NoError(t, json.Unmarshal(raw, &first))
	require.Equal(t, "bid_recorded", first.Action)
	require.Nil(t, first.Settlement)

	raw, rpcErr, _ = env.call(t, bobToken, "market_placeBid", map[string]interface{}{
		"assetId": "123",
		"amount":  map[string]string{"denom": "token", "amount": "6"},
		"bidder":  addrString(bob),
	})
	require.Nil(t, rpcErr)
	var second PlaceBidResult
	require.NoError(t, json.Unmarshal(raw, &second))
	require.Equal(t, "bid_settled", second.Action)
	require.Equal(t, "crossed", second.Settlement.Mode)
	require.Equal(t, addrString(alice), second.Settlement.Seller)

	raw, rpcErr, _ = env.call(t, "", "market_ownerOf", map[string]string{"assetId": "123"})
	require.Nil(t, rpcErr)
	require.Contains(t, string(raw), addrString(bob))

	raw, rpcErr, _ = env.call(t, "", "bank_balance", map[string]string{"address": addrString(alice), "denom": "TOKEN"})
	require.Nil(t, rpcErr)
	var bal BalanceResult
	require.NoError(t, json.Unmarshal(raw, &bal))
	require.Equal(t, "6", bal.Amount)
}

func TestMarketErrorCodes(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.mintListed(t, "123", "5")
	bobToken := env.token(t, bob)

	_, rpcErr, status := env.call(t, bobToken, "market_placeBid", map[string]interface{}{
		"assetId": "123",
		"amount":  map[string]string{"denom": "token", "amount": "0"},
		"bidder":  addrString(bob),
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidBidAmount, rpcErr.Code)
	require.Equal(t, http.StatusBadRequest, status)

	_, rpcErr, _ = env.call(t, bobToken, "market_placeBid", map[string]interface{}{
		"assetId": "123",
		"amount":  map[string]string{"denom": "token", "amount": "4"},
		"bidder":  addrString(bob),
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInsufficientFunds, rpcErr.Code)

	_, rpcErr, _ = env.call(t, bobToken, "market_acceptBid", map[string]interface{}{
		"assetId": "123",
		"bidder":  addrString(alice),
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotOwner, rpcErr.Code)

	_, rpcErr, _ = env.call(t, "", "market_currentAsk", map[string]string{"assetId": "missing"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotFound, rpcErr.Code)

	_, rpcErr, _ = env.call(t, env.token(t, alice), "market_lock", map[string]string{"assetId": "123"})
	require.Nil(t, rpcErr)
	require.NoError(t, env.node.Credit(context.Background(), bob, "token", big.NewInt(10)))
	_, rpcErr, _ = env.call(t, bobToken, "market_placeBid", map[string]interface{}{
		"assetId": "123",
		"amount":  map[string]string{"denom": "token", "amount": "9"},
		"bidder":  addrString(bob),
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeClaimed, rpcErr.Code)
}

func TestPlaceBidRequiresMatchingCaller(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.mintListed(t, "123", "5")
	_, rpcErr, status := env.call(t, env.token(t, alice), "market_placeBid", map[string]interface{}{
		"assetId": "123",
		"amount":  map[string]string{"denom": "token", "amount": "1"},
		"bidder":  addrString(bob),
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotOwner, rpcErr.Code)
	require.Equal(t, http.StatusForbidden, status)
}

func TestMutationsRequireAuth(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	_, rpcErr, status := env.call(t, "", "market_lock", map[string]string{"assetId": "123"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)
	require.Equal(t, http.StatusUnauthorized, status)

	forged, err := IssueToken("another-secret-value", testIssuer, alice, time.Hour)
	require.NoError(t, err)
	_, rpcErr, _ = env.call(t, forged, "market_lock", map[string]string{"assetId": "123"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	expired, err := IssueToken(testJWTSecret, testIssuer, alice, -time.Hour)
	require.NoError(t, err)
	_, rpcErr, _ = env.call(t, expired, "market_lock", map[string]string{"assetId": "123"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	wrongIssuer, err := IssueToken(testJWTSecret, "elsewhere", alice, time.Hour)
	require.NoError(t, err)
	_, rpcErr, _ = env.call(t, wrongIssuer, "market_lock", map[string]string{"assetId": "123"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RequestsPerSecond: 0.001, Burst: 1})
	token := env.token(t, alice)
	_, rpcErr, _ := env.call(t, token, "market_lock", map[string]string{"assetId": "123"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotFound, rpcErr.Code)

	_, rpcErr, status := env.call(t, token, "market_lock", map[string]string{"assetId": "123"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeRateLimited, rpcErr.Code)
	require.Equal(t, http.StatusTooManyRequests, status)

	// Reads are never throttled.
	_, rpcErr, _ = env.call(t, "", "node_status", nil)
	require.Nil(t, rpcErr)
}

func TestInvalidRequests(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	_, rpcErr, _ := env.call(t, "", "market_unknown", nil)
	require.Equal(t, codeMethodNotFound, rpcErr.Code)

	_, rpcErr, _ = env.call(t, "", "market_bid", map[string]string{"assetId": "1", "bidder": "nope"})
	require.Equal(t, codeInvalidParams, rpcErr.Code)

	_, rpcErr, _ = env.call(t, "", "market_bids", map[string]string{"assetId": "1", "extra": "x"})
	require.Equal(t, codeInvalidParams, rpcErr.Code, "unknown fields are rejected")

	_, rpcErr, _ = env.call(t, env.token(t, alice), "market_publishAsk", map[string]interface{}{
		"assetId": "1",
		"price":   map[string]string{"denom": "token", "amount": "1.5"},
	})
	require.Equal(t, codeInvalidParams, rpcErr.Code)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON payload")
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, ServerConfig{MaxBodyBytes: 64})
	body := `{"jsonrpc":"2.0","id":1,"method":"node_status","params":[{"pad":"` + strings.Repeat("x", 128) + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSalesAndStatus(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.history.sales = []indexer.Sale{{AssetID: "123", Denom: "token", Amount: "6", Mode: "crossed"}}

	raw, rpcErr, _ := env.call(t, "", "market_sales", map[string]interface{}{"assetId": "123", "limit": 5})
	require.Nil(t, rpcErr)
	var sales []SaleResult
	require.NoError(t, json.Unmarshal(raw, &sales))
	require.Len(t, sales, 1)
	require.Equal(t, "6", sales[0].Amount.Amount)
	require.Equal(t, "123", env.history.asset)
	require.Equal(t, 5, env.history.limit)

	raw, rpcErr, _ = env.call(t, "", "node_status", nil)
	require.Nil(t, rpcErr)
	var status StatusResult
	require.NoError(t, json.Unmarshal(raw, &status))
	require.Equal(t, addrString(env.node.MarketModuleAddress()), status.MarketModule)
	require.Equal(t, addrString(alice), status.Minter)
}

func TestEventsOverRPC(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.history.events = []indexer.EventRecord{{
		ID:         uuid.New(),
		Type:       "market.bid_placed",
		AssetID:    "123",
		Attributes: `{"assetId":"123","amount":"1"}`,
	}}

	raw, rpcErr, _ := env.call(t, "", "market_events", map[string]interface{}{"type": "market.bid_placed", "assetId": "123", "limit": 7})
	require.Nil(t, rpcErr)
	var out []EventResult
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out, 1)
	require.Equal(t, "1", out[0].Attributes["amount"])
	require.Equal(t, "market.bid_placed", env.history.eventType)
	require.Equal(t, "123", env.history.asset)
	require.Equal(t, 7, env.history.limit)

	env.history.events[0].Attributes = "not json"
	_, rpcErr, status := env.call(t, "", "market_events", nil)
	require.NotNil(t, rpcErr)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Empty(t, env.history.eventType, "params are optional")
}

func TestMintRestrictedToMinter(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	root := env.node.Root()

	_, rpcErr, status := env.call(t, env.token(t, bob), "market_mint", map[string]interface{}{
		"assetId": "x",
		"owner":   addrString(alice),
		"ask":     map[string]string{"denom": "token", "amount": "0"},
	})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotOwner, rpcErr.Code)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, root, env.node.Root())

	_, rpcErr, _ = env.call(t, "", "market_token", map[string]string{"assetId": "x"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotFound, rpcErr.Code)
}

func TestSalesWithoutIndexer(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db)
	require.NoError(t, err)
	srv, err := NewServer(node, nil, ServerConfig{JWTSecret: testJWTSecret}, nil)
	require.NoError(t, err)
	env := &testEnv{node: node, server: srv, handler: srv.Handler()}
	_, rpcErr, status := env.call(t, "", "market_sales", nil)
	require.NotNil(t, rpcErr)
	require.Equal(t, http.StatusServiceUnavailable, status)

	_, rpcErr, status = env.call(t, "", "market_events", nil)
	require.NotNil(t, rpcErr)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNewServerRequiresSecret(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db)
	require.NoError(t, err)
	_, err = NewServer(node, nil, ServerConfig{}, nil)
	require.Error(t, err)
}
