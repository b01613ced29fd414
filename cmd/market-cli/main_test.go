package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/config"
	"nftmarket/crypto"
	"nftmarket/rpc"
)

type fixedPass string

func (p fixedPass) Get() (string, error) { return string(p), nil }

type recordedCall struct {
	method string
	params json.RawMessage
	auth   bool
}

func stubRPC(t *testing.T, result string, err error) *[]recordedCall {
	t.Helper()
	var calls []recordedCall
	original := callRPC
	callRPC = func(method string, params interface{}, authenticated bool) (json.RawMessage, error) {
		raw, marshalErr := json.Marshal(params)
		require.NoError(t, marshalErr)
		calls = append(calls, recordedCall{method: method, params: raw, auth: authenticated})
		if err != nil {
			return nil, err
		}
		return json.RawMessage(result), nil
	}
	t.Cleanup(func() { callRPC = original })
	return &calls
}

func stubPassphrase(t *testing.T, pass string) {
	t.Helper()
	original := newPassphraseSource
	newPassphraseSource = func() passphraseSource { return fixedPass(pass) }
	t.Cleanup(func() { newPassphraseSource = original })
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestPlaceBidSendsAuthenticatedCall(t *testing.T) {
	calls := stubRPC(t, `{"action":"bid_recorded"}`, nil)
	code, out, stderr := runCLI("place-bid", "-asset", "123", "-denom", "token", "-amount", "6", "-bidder", "mkt1x")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, `"action": "bid_recorded"`)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "market_placeBid", call.method)
	require.True(t, call.auth)
	var params rpc.PlaceBidParams
	require.NoError(t, json.Unmarshal(call.params, &params))
	require.Equal(t, "6", params.Amount.Amount)
	require.Equal(t, "mkt1x", params.Bidder)
}

func TestReadsAreUnauthenticated(t *testing.T) {
	calls := stubRPC(t, `{"owner":"mkt1abc"}`, nil)
	code, _, _ := runCLI("owner", "-asset", "123")
	require.Equal(t, 0, code)
	require.False(t, (*calls)[0].auth)
	require.Equal(t, "market_ownerOf", (*calls)[0].method)
}

func TestEventsForwardsFilters(t *testing.T) {
	calls := stubRPC(t, `[]`, nil)
	code, _, stderr := runCLI("events", "-type", "market.settled", "-asset", "123", "-limit", "3")
	require.Equal(t, 0, code, stderr)
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "market_events", call.method)
	require.False(t, call.auth)
	var params rpc.EventsParams
	require.NoError(t, json.Unmarshal(call.params, &params))
	require.Equal(t, rpc.EventsParams{Type: "market.settled", AssetID: "123", Limit: 3}, params)
}

func TestMissingFlagsAndErrors(t *testing.T) {
	stubRPC(t, `{}`, &rpc.RPCError{Code: -32031, Message: "unauthorized"})

	code, _, stderr := runCLI("accept-bid", "-asset", "123")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "-bidder is required")

	code, _, stderr = runCLI("lock", "-asset", "123")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unauthorized")

	code, _, stderr = runCLI("frobnicate")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "unknown command")
}

func TestGlobalFlags(t *testing.T) {
	original, originalToken := rpcEndpoint, rpcAuthToken
	t.Cleanup(func() { rpcEndpoint, rpcAuthToken = original, originalToken })

	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:1", "status", "--token=abc"})
	require.NoError(t, err)
	require.Equal(t, []string{"status"}, rest)
	require.Equal(t, "http://node:1", rpcEndpoint)
	require.Equal(t, "abc", rpcAuthToken)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}

func TestGenerateKeyAndDevToken(t *testing.T) {
	stubPassphrase(t, "correct horse")
	path := filepath.Join(t.TempDir(), "wallet.keystore")

	code, out, stderr := runCLI("generate-key", "-out", path)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "mkt1")

	code, _, stderr = runCLI("generate-key", "-out", path)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "already exists")

	code, addrOut, _ := runCLI("address", "-keystore", path)
	require.Equal(t, 0, code)
	addr := strings.TrimSpace(addrOut)
	require.Contains(t, out, addr)

	code, tokenOut, stderr := runCLI("dev-token", "-keystore", path, "-secret", "0123456789abcdef")
	require.Equal(t, 0, code, stderr)
	token := strings.TrimSpace(tokenOut)
	require.Equal(t, 2, strings.Count(token, "."))
}

func TestDevTokenSecretResolution(t *testing.T) {
	var subject [20]byte
	subject[0] = 0x09
	addr := crypto.FromBytes20(subject).String()

	t.Setenv(config.DefaultJWTSecretEnv, "")
	code, _, stderr := runCLI("dev-token", "-address", addr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "-secret is required")

	t.Setenv(config.DefaultJWTSecretEnv, "0123456789abcdef")
	code, out, stderr := runCLI("dev-token", "-address", addr, "-issuer", "")
	require.Equal(t, 0, code, stderr)
	require.NotEmpty(t, strings.TrimSpace(out))
}

func TestPostRPCDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), `"method":"market_lock"`)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32031,"message":"unauthorized"}}`))
	}))
	defer srv.Close()

	original, originalToken := rpcEndpoint, rpcAuthToken
	rpcEndpoint, rpcAuthToken = srv.URL, "tok"
	t.Cleanup(func() { rpcEndpoint, rpcAuthToken = original, originalToken })

	_, err := postRPC("market_lock", rpc.AssetParams{AssetID: "1"}, true)
	var rpcErr *rpc.RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, -32031, rpcErr.Code)

	rpcAuthToken = ""
	_, err = postRPC("market_lock", rpc.AssetParams{AssetID: "1"}, true)
	require.ErrorContains(t, err, "requires a bearer token")
}
