package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nftmarket/config"
	"nftmarket/core"
	"nftmarket/core/events"
	"nftmarket/crypto"
	"nftmarket/native/market"
	"nftmarket/native/registry"
	"nftmarket/storage"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}
	empty := func(string) (string, bool) { return "", false }

	require.Equal(t, "cli-path", resolveGenesisPath(" cli-path ", "cfg-path", lookup))
	require.Equal(t, "env-path", resolveGenesisPath("", "cfg-path", lookup))
	require.Equal(t, "cfg-path", resolveGenesisPath("", "cfg-path", empty))
	require.Equal(t, "", resolveGenesisPath("", "", nil))
}

func TestServerConfigConvertsSeconds(t *testing.T) {
	cfg := &config.Config{RPC: config.RPC{JWTSecret: "s", ReadTimeout: 7, Burst: 3}}
	out := serverConfig(cfg)
	require.Equal(t, 7*time.Second, out.ReadTimeout)
	require.Equal(t, 3, out.Burst)
	require.Equal(t, "s", out.JWTSecret)
}

func TestApplyGenesisIsIdempotentAcrossRestarts(t *testing.T) {
	var owner [20]byte
	owner[0] = 0x01
	doc := fmt.Sprintf(`genesisTime: "2026-01-01T00:00:00Z"
minter: %s
assets:
  - id: "123"
    owner: %s
`, crypto.FromBytes20(owner), crypto.FromBytes20(owner))
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db)
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	require.NoError(t, applyGenesis(context.Background(), node, path, logger))
	root := node.Root()
	require.NoError(t, applyGenesis(context.Background(), node, path, logger))
	require.Equal(t, root, node.Root())

	got, err := node.OwnerOf("123")
	require.NoError(t, err)
	require.Equal(t, owner, got)
}

type recordingEmitter struct{ types []string }

func (r *recordingEmitter) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

func TestBootstrapPublishesGenesisEvents(t *testing.T) {
	var owner, minter [20]byte
	owner[0], minter[0] = 0x01, 0x0a
	doc := fmt.Sprintf(`genesisTime: "2026-01-01T00:00:00Z"
minter: %s
assets:
  - id: "123"
    owner: %s
    ask: {denom: token, amount: "5"}
`, crypto.FromBytes20(minter), crypto.FromBytes20(owner))
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db)
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	rec := &recordingEmitter{}
	require.NoError(t, bootstrap(context.Background(), node, rec, path, crypto.FromBytes20(minter).String(), logger))
	require.Contains(t, rec.types, registry.EventTypeMinterSet)
	require.Contains(t, rec.types, registry.EventTypeMinted)
	require.Contains(t, rec.types, market.EventTypeAskPublished)
	require.Equal(t, uint64(1), node.Height(), "a config minter equal to the genesis minter is not a transition")
}

func TestConfigureMinter(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db)
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	var minter, other [20]byte
	minter[0], other[0] = 0x0a, 0x0b

	require.NoError(t, configureMinter(ctx, node, "", logger))
	require.Zero(t, node.Height())
	require.Error(t, configureMinter(ctx, node, "not-an-address", logger))

	require.NoError(t, configureMinter(ctx, node, crypto.FromBytes20(minter).String(), logger))
	got, err := node.Minter()
	require.NoError(t, err)
	require.Equal(t, minter, got)

	err = configureMinter(ctx, node, crypto.FromBytes20(other).String(), logger)
	require.ErrorIs(t, err, market.ErrClaimed)
}

func TestRunRejectsMissingSecret(t *testing.T) {
	t.Setenv(config.DefaultJWTSecretEnv, "")
	dir := t.TempDir()
	err := run(context.Background(), filepath.Join(dir, "config.toml"), "", func(string) (string, bool) { return "", false })
	require.Error(t, err)
	require.Contains(t, err.Error(), "JWT secret")
}
