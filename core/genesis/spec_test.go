package genesis

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nftmarket/crypto"
)

func testAddr(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.FromBytes20(raw).String()
}

func TestLoadGenesisSpec(t *testing.T) {
	alice, bob := testAddr(0x01), testAddr(0x02)
	doc := fmt.Sprintf(`
genesisTime: "2026-01-01T00:00:00Z"
minter: %s
alloc:
  %s:
    TOKEN: "100"
    dust: "0"
  %s:
    token: "50"
assets:
  - id: "123"
    owner: %s
    name: Sunrise
    ask:
      denom: token
      amount: "5"
  - id: unlisted
    owner: %s
`, alice, bob, alice, alice, bob)
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	spec, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2026, spec.GenesisTimestamp().Year())
	minter, ok := spec.MinterAddress()
	require.True(t, ok)
	require.Equal(t, byte(0x01), minter[0])

	balances := spec.Balances()
	require.Len(t, balances, 2, "zero allocations are skipped")
	require.Equal(t, byte(0x01), balances[0].Address[0], "ordered by address")
	require.Equal(t, "token", balances[1].Denom, "denominations are normalised")
	require.Equal(t, int64(100), balances[1].Amount.Int64())

	assets := spec.AssetEntries()
	require.Len(t, assets, 2)
	require.Equal(t, "123", assets[0].Token.ID)
	require.NotNil(t, assets[0].Ask)
	require.Equal(t, int64(5), assets[0].Ask.Amount.Int64())
	require.Nil(t, assets[1].Ask)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	alice := testAddr(0x01)
	cases := map[string]string{
		"missing time":   `alloc: {}`,
		"unknown field":  "genesisTime: \"2026-01-01T00:00:00Z\"\nbogus: 1\n",
		"bad address":    "genesisTime: \"2026-01-01T00:00:00Z\"\nalloc:\n  nope:\n    token: \"1\"\n",
		"negative alloc": fmt.Sprintf("genesisTime: \"2026-01-01T00:00:00Z\"\nalloc:\n  %s:\n    token: \"-1\"\n", alice),
		"duplicate asset": fmt.Sprintf(
			"genesisTime: \"2026-01-01T00:00:00Z\"\nminter: %s\nassets:\n  - id: a\n    owner: %s\n  - id: a\n    owner: %s\n", alice, alice, alice),
		"bad ask denom": fmt.Sprintf(
			"genesisTime: \"2026-01-01T00:00:00Z\"\nminter: %s\nassets:\n  - id: a\n    owner: %s\n    ask: {denom: \"$\", amount: \"1\"}\n", alice, alice),
		"assets without minter": fmt.Sprintf(
			"genesisTime: \"2026-01-01T00:00:00Z\"\nassets:\n  - id: a\n    owner: %s\n", alice),
		"bad minter": "genesisTime: \"2026-01-01T00:00:00Z\"\nminter: nope\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	_, err := Load(" ")
	require.Error(t, err)
}
