package market

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"nftmarket/core/events"
	"nftmarket/native/custody"
	"nftmarket/native/registry"
)

type bidKey struct {
	asset  string
	bidder [20]byte
}

// mockState backs the market, registry and custody engines with plain maps.
type mockState struct {
	asks     map[string]*Ask
	bids     map[bidKey]*Bid
	bidders  map[string][][20]byte
	tokens   map[string]*registry.Token
	balances map[string]map[[20]byte]*big.Int
	minter   *[20]byte

	failPutBid bool
}

func newMockState() *mockState {
	return &mockState{
		asks:     make(map[string]*Ask),
		bids:     make(map[bidKey]*Bid),
		bidders:  make(map[string][][20]byte),
		tokens:   make(map[string]*registry.Token),
		balances: make(map[string]map[[20]byte]*big.Int),
	}
}

func (m *mockState) MarketAsk(assetID string) (*Ask, bool, error) {
	ask, ok := m.asks[assetID]
	if !ok {
		return nil, false, nil
	}
	return ask.Clone(), true, nil
}

func (m *mockState) MarketPutAsk(a *Ask) error {
	m.asks[a.AssetID] = a.Clone()
	return nil
}

func (m *mockState) MarketDeleteAsk(assetID string) error {
	delete(m.asks, assetID)
	return nil
}

func (m *mockState) MarketBid(assetID string, bidder [20]byte) (*Bid, bool, error) {
	bid, ok := m.bids[bidKey{assetID, bidder}]
	if !ok {
		return nil, false, nil
	}
	return bid.Clone(), true, nil
}

func (m *mockState) MarketPutBid(b *Bid) error {
	if m.failPutBid {
		return errors.New("disk full")
	}
	key := bidKey{b.AssetID, b.Bidder}
	if _, exists := m.bids[key]; !exists {
		m.bidders[b.AssetID] = append(m.bidders[b.AssetID], b.Bidder)
	}
	m.bids[key] = b.Clone()
	return nil
}

func (m *mockState) MarketDeleteBid(assetID string, bidder [20]byte) error {
	key := bidKey{assetID, bidder}
	if _, exists := m.bids[key]; !exists {
		return nil
	}
	delete(m.bids, key)
	list := m.bidders[assetID]
	for i, existing := range list {
		if existing == bidder {
			m.bidders[assetID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockState) MarketBidders(assetID string) ([][20]byte, error) {
	return append([][20]byte(nil), m.bidders[assetID]...), nil
}

func (m *mockState) RegistryToken(assetID string) (*registry.Token, bool, error) {
	token, ok := m.tokens[assetID]
	if !ok {
		return nil, false, nil
	}
	return token.Clone(), true, nil
}

func (m *mockState) RegistryPutToken(t *registry.Token) error {
	m.tokens[t.ID] = t.Clone()
	return nil
}

func (m *mockState) RegistryMinter() ([20]byte, bool, error) {
	if m.minter == nil {
		return [20]byte{}, false, nil
	}
	return *m.minter, true, nil
}

func (m *mockState) RegistryPutMinter(minter [20]byte) error {
	m.minter = &minter
	return nil
}

func (m *mockState) CustodyBalance(denom string, addr [20]byte) (*big.Int, error) {
	bal, ok := m.balances[denom][addr]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (m *mockState) CustodySetBalance(denom string, addr [20]byte, amount *big.Int) error {
	if m.balances[denom] == nil {
		m.balances[denom] = make(map[[20]byte]*big.Int)
	}
	m.balances[denom][addr] = new(big.Int).Set(amount)
	return nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	alice      = newTestAddress(0x01)
	bob        = newTestAddress(0x02)
	carol      = newTestAddress(0x03)
	minterAddr = newTestAddress(0x0a)
)

type testEnv struct {
	state    *mockState
	market   *Engine
	registry *registry.Engine
	custody  *custody.Engine
	events   *events.Buffer
	minter   [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	state := newMockState()
	buf := &events.Buffer{}
	now := func() int64 { return 1_700_000_000 }

	reg := registry.NewEngine()
	reg.SetState(state)
	reg.SetEmitter(buf)
	reg.SetNowFunc(now)
	if err := reg.SetMinter(minterAddr); err != nil {
		t.Fatalf("set minter: %v", err)
	}

	cust := custody.NewEngine()
	cust.SetState(state)
	cust.SetEmitter(buf)

	engine := NewEngine()
	engine.SetState(state)
	engine.SetRegistry(reg)
	engine.SetCustody(cust)
	engine.SetEmitter(buf)
	engine.SetNowFunc(now)

	return &testEnv{state: state, market: engine, registry: reg, custody: cust, events: buf, minter: minterAddr}
}

// listed mints assetID to owner and publishes an ask at price.
func (env *testEnv) listed(t *testing.T, assetID string, owner [20]byte, price Coin) {
	t.Helper()
	if _, err := env.registry.Mint(env.minter, &registry.Token{ID: assetID, Owner: owner}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := env.market.PublishAsk(owner, assetID, price); err != nil {
		t.Fatalf("publish ask: %v", err)
	}
}

func (env *testEnv) fund(t *testing.T, addr [20]byte, denom string, amount int64) {
	t.Helper()
	if err := env.custody.Credit(addr, denom, big.NewInt(amount)); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (env *testEnv) balance(t *testing.T, addr [20]byte, denom string) int64 {
	t.Helper()
	bal, err := env.custody.Balance(addr, denom)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (env *testEnv) owner(t *testing.T, assetID string) [20]byte {
	t.Helper()
	owner, err := env.market.OwnerOf(assetID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	return owner
}

// approved reports whether spender holds an approval on assetID.
func (env *testEnv) approved(t *testing.T, assetID string, spender [20]byte) bool {
	t.Helper()
	token, err := env.registry.Token(assetID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	for _, approval := range token.Approvals {
		if approval.Spender == spender {
			return true
		}
	}
	return false
}
