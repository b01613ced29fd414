package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nftmarket/crypto"
	"nftmarket/native/market"
	"nftmarket/native/registry"
)

// Spec is the YAML genesis document applied to an empty state.
type Spec struct {
	GenesisTime string                       `yaml:"genesisTime"`
	Minter      string                       `yaml:"minter,omitempty"`
	Alloc       map[string]map[string]string `yaml:"alloc"` // addr -> denom -> amount
	Assets      []AssetSpec                  `yaml:"assets"`

	genesisTimestamp time.Time
	minter           [20]byte
	hasMinter        bool
	balances         []Balance
	assets           []Asset
}

// AssetSpec mints one asset and optionally lists it.
type AssetSpec struct {
	ID          string    `yaml:"id"`
	Owner       string    `yaml:"owner"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Image       string    `yaml:"image,omitempty"`
	Ask         *CoinSpec `yaml:"ask,omitempty"`
}

// CoinSpec is a denomination and a decimal amount string.
type CoinSpec struct {
	Denom  string `yaml:"denom"`
	Amount string `yaml:"amount"`
}

// Balance is a resolved alloc entry.
type Balance struct {
	Address [20]byte
	Denom   string
	Amount  *big.Int
}

// Asset is a resolved asset entry.
type Asset struct {
	Token *registry.Token
	Ask   *market.Coin
}

// Load reads and validates a genesis document.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes and validates a genesis document. Unknown fields are rejected.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// MinterAddress returns the minting authority named by the document, if any.
func (s *Spec) MinterAddress() ([20]byte, bool) { return s.minter, s.hasMinter }

// Balances returns the alloc entries ordered by address then denomination.
func (s *Spec) Balances() []Balance {
	out := make([]Balance, len(s.balances))
	for i, b := range s.balances {
		out[i] = Balance{Address: b.Address, Denom: b.Denom, Amount: new(big.Int).Set(b.Amount)}
	}
	return out
}

// AssetEntries returns the assets in document order.
func (s *Spec) AssetEntries() []Asset {
	out := make([]Asset, len(s.assets))
	for i, a := range s.assets {
		entry := Asset{Token: a.Token.Clone()}
		if a.Ask != nil {
			ask := a.Ask.Clone()
			entry.Ask = &ask
		}
		out[i] = entry
	}
	return out
}

func (s *Spec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	s.minter, s.hasMinter = [20]byte{}, false
	if trimmed := strings.TrimSpace(s.Minter); trimmed != "" {
		minter, err := crypto.ParseMarketAddress(trimmed)
		if err != nil {
			return fmt.Errorf("minter: %w", err)
		}
		s.minter, s.hasMinter = minter, true
	}

	s.balances = s.balances[:0]
	for addrStr, denoms := range s.Alloc {
		addr, err := crypto.ParseMarketAddress(addrStr)
		if err != nil {
			return fmt.Errorf("alloc address %q: %w", addrStr, err)
		}
		for denom, amountStr := range denoms {
			normalized, err := market.NormalizeDenom(denom)
			if err != nil {
				return fmt.Errorf("alloc %q: %w", addrStr, err)
			}
			amount, err := parseAmountString(amountStr)
			if err != nil {
				return fmt.Errorf("alloc %q %s: %w", addrStr, denom, err)
			}
			if amount.Sign() == 0 {
				continue
			}
			s.balances = append(s.balances, Balance{Address: addr, Denom: normalized, Amount: amount})
		}
	}
	sort.Slice(s.balances, func(i, j int) bool {
		if c := bytes.Compare(s.balances[i].Address[:], s.balances[j].Address[:]); c != 0 {
			return c < 0
		}
		return s.balances[i].Denom < s.balances[j].Denom
	})

	seen := make(map[string]struct{}, len(s.Assets))
	s.assets = s.assets[:0]
	for i, spec := range s.Assets {
		id, err := market.NormalizeAssetID(spec.ID)
		if err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("assets[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		owner, err := crypto.ParseMarketAddress(spec.Owner)
		if err != nil {
			return fmt.Errorf("assets[%d] owner: %w", i, err)
		}
		entry := Asset{Token: &registry.Token{
			ID:          id,
			Owner:       owner,
			Name:        spec.Name,
			Description: spec.Description,
			Image:       spec.Image,
		}}
		if spec.Ask != nil {
			amount, err := parseAmountString(spec.Ask.Amount)
			if err != nil {
				return fmt.Errorf("assets[%d] ask: %w", i, err)
			}
			coin, err := market.SanitizeCoin(market.Coin{Denom: spec.Ask.Denom, Amount: amount})
			if err != nil {
				return fmt.Errorf("assets[%d] ask: %w", i, err)
			}
			entry.Ask = &coin
		}
		s.assets = append(s.assets, entry)
	}
	if len(s.assets) > 0 && !s.hasMinter {
		return fmt.Errorf("assets require a minter")
	}
	return nil
}

func parseGenesisTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse genesisTime: %w", err)
	}
	return ts.UTC(), nil
}

func parseAmountString(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
