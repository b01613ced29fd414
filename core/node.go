package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/core/events"
	"nftmarket/core/genesis"
	"nftmarket/core/state"
	"nftmarket/crypto"
	"nftmarket/native/custody"
	"nftmarket/native/market"
	"nftmarket/native/registry"
	"nftmarket/observability"
	"nftmarket/storage"
	"nftmarket/storage/trie"
)

var headKey = []byte("market/head")

// ErrGenesisApplied is returned when genesis is applied to a non-empty state.
var ErrGenesisApplied = errors.New("core: genesis already applied")

type storedHead struct {
	Root   common.Hash
	Height uint64
}

// Node is the transactional execution environment for the market. Calls are
// serialised; each mutating call runs against a staged copy of the state trie
// that is committed only when every step succeeded. Events are published only
// after commit.
type Node struct {
	db      storage.Database
	trie    *trie.Trie
	height  uint64
	stateMu sync.Mutex

	emitter events.Emitter
	logger  *slog.Logger
	metrics *observability.MarketMetrics
	nowFn   func() int64
}

// NewNode opens the state at the persisted head, or an empty state when the
// database is fresh.
func NewNode(db storage.Database) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	head, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if head.Height > 0 {
		root = head.Root.Bytes()
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("core: open state at %s: %w", head.Root.Hex(), err)
	}
	return &Node{
		db:      db,
		trie:    stateTrie,
		height:  head.Height,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Market(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

func loadHead(db storage.Database) (storedHead, error) {
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return storedHead{}, nil
	}
	if err != nil {
		return storedHead{}, fmt.Errorf("core: read head: %w", err)
	}
	var head storedHead
	if err := rlp.DecodeBytes(raw, &head); err != nil {
		return storedHead{}, fmt.Errorf("core: decode head: %w", err)
	}
	return head, nil
}

func (n *Node) writeHead(root common.Hash, height uint64) error {
	encoded, err := rlp.EncodeToBytes(storedHead{Root: root, Height: height})
	if err != nil {
		return err
	}
	return n.db.Put(headKey, encoded)
}

// SetEmitter configures where committed events are published.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetLogger configures the logger used for state transitions.
func (n *Node) SetLogger(logger *slog.Logger) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
}

// SetNowFunc overrides the clock handed to the engines. Intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	n.nowFn = now
}

// Height returns the number of committed state transitions.
func (n *Node) Height() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.height
}

// Root returns the committed state root.
func (n *Node) Root() common.Hash {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.trie.Root()
}

// MarketModuleAddress returns the operator address crossing settlements use.
func (n *Node) MarketModuleAddress() [20]byte { return crypto.ModuleAddress(market.ModuleName) }

// CustodyVaultAddress returns the account holding escrowed bids.
func (n *Node) CustodyVaultAddress() [20]byte { return custody.NewEngine().VaultAddress() }

type engines struct {
	manager  *state.Manager
	market   *market.Engine
	registry *registry.Engine
	custody  *custody.Engine
	buffer   *events.Buffer
}

func (n *Node) newEngines(tr *trie.Trie) *engines {
	manager := state.NewManager(tr)
	buf := &events.Buffer{}

	reg := registry.NewEngine()
	reg.SetState(manager)
	reg.SetEmitter(buf)
	reg.SetNowFunc(n.nowFn)

	cust := custody.NewEngine()
	cust.SetState(manager)
	cust.SetEmitter(buf)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetRegistry(reg)
	engine.SetCustody(cust)
	engine.SetEmitter(buf)
	engine.SetNowFunc(n.nowFn)

	return &engines{manager: manager, market: engine, registry: reg, custody: cust, buffer: buf}
}

// apply runs fn against a staged copy of the state. On success the copy is
// committed, the head persisted and buffered events published; on failure the
// copy is dropped and the committed state is untouched.
func (n *Node) apply(ctx context.Context, op string, fn func(*engines) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	staged := n.trie.Copy()
	eng := n.newEngines(staged)
	if err := fn(eng); err != nil {
		n.metrics.RecordOperation(op, outcomeLabel(err), time.Since(start))
		n.logger.Debug("state transition rejected",
			slog.String("operation", op),
			slog.String("kind", outcomeLabel(err)),
			slog.String("error", err.Error()))
		return err
	}

	parent := n.trie.Root()
	height := n.height + 1
	root, err := staged.Commit(parent, height)
	if err != nil {
		n.metrics.RecordOperation(op, market.KindStorage.String(), time.Since(start))
		n.logger.Error("state commit failed", slog.String("operation", op), slog.Any("error", err))
		return fmt.Errorf("%w: commit: %v", market.ErrStorage, err)
	}
	if err := n.writeHead(root, height); err != nil {
		n.metrics.RecordOperation(op, market.KindStorage.String(), time.Since(start))
		n.logger.Error("head write failed", slog.String("operation", op), slog.Any("error", err))
		return fmt.Errorf("%w: write head: %v", market.ErrStorage, err)
	}
	n.trie = staged
	n.height = height
	eng.buffer.Flush(n.emitter)

	n.metrics.RecordOperation(op, "", time.Since(start))
	n.metrics.SetHeight(height)
	n.logger.Info("state transition committed",
		slog.String("operation", op),
		slog.Uint64("height", height),
		slog.String("root", root.Hex()))
	return nil
}

// view runs a read-only fn against the committed state.
func (n *Node) view(fn func(*engines) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return fn(n.newEngines(n.trie))
}

func outcomeLabel(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Canceled"
	}
	return market.KindOf(err).String()
}

// Minter returns the account allowed to mint.
func (n *Node) Minter() ([20]byte, error) {
	var minter [20]byte
	err := n.view(func(e *engines) error {
		var err error
		minter, err = e.registry.Minter()
		return market.FromRegistryError(err)
	})
	return minter, err
}

// SetMinter records the minting authority. Re-applying the recorded minter
// does not create a transition; a different minter fails with ErrClaimed.
func (n *Node) SetMinter(ctx context.Context, minter [20]byte) error {
	if current, err := n.Minter(); err == nil && current == minter {
		return nil
	}
	return n.apply(ctx, "set_minter", func(e *engines) error {
		return market.FromRegistryError(e.registry.SetMinter(minter))
	})
}

// Mint registers a new asset and, when ask is non-nil, publishes its ask in
// the same transition. Only the configured minter may mint.
func (n *Node) Mint(ctx context.Context, minter [20]byte, token *registry.Token, ask *market.Coin) (*registry.Token, *market.Ask, error) {
	var (
		minted *registry.Token
		listed *market.Ask
	)
	err := n.apply(ctx, "mint", func(e *engines) error {
		var err error
		minted, err = e.registry.Mint(minter, token)
		if err != nil {
			return market.FromRegistryError(err)
		}
		if ask == nil {
			return nil
		}
		listed, err = e.market.PublishAsk(minted.Owner, minted.ID, *ask)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return minted, listed, nil
}

// PublishAsk lists or re-lists an asset.
func (n *Node) PublishAsk(ctx context.Context, owner [20]byte, assetID string, price market.Coin) (*market.Ask, error) {
	var ask *market.Ask
	err := n.apply(ctx, "publish_ask", func(e *engines) error {
		var err error
		ask, err = e.market.PublishAsk(owner, assetID, price)
		return err
	})
	return ask, err
}

// WithdrawAsk delists an asset.
func (n *Node) WithdrawAsk(ctx context.Context, owner [20]byte, assetID string) (*market.Ask, error) {
	var ask *market.Ask
	err := n.apply(ctx, "withdraw_ask", func(e *engines) error {
		var err error
		ask, err = e.market.WithdrawAsk(owner, assetID)
		return err
	})
	return ask, err
}

// PlaceBid records a bid and settles it when it crosses the ask.
func (n *Node) PlaceBid(ctx context.Context, assetID string, amount market.Coin, bidder, recipient [20]byte) (*market.PlaceBidResult, error) {
	var result *market.PlaceBidResult
	err := n.apply(ctx, "place_bid", func(e *engines) error {
		var err error
		result, err = e.market.PlaceBid(assetID, amount, bidder, recipient)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Settlement != nil {
		n.metrics.RecordSettlement(string(result.Settlement.Mode), result.Settlement.Amount.Denom)
	}
	return result, nil
}

// AcceptBid settles a standing bid on the caller's asset.
func (n *Node) AcceptBid(ctx context.Context, caller [20]byte, assetID string, bidder [20]byte) (*market.Settlement, error) {
	var settlement *market.Settlement
	err := n.apply(ctx, "accept_bid", func(e *engines) error {
		var err error
		settlement, err = e.market.AcceptBid(caller, assetID, bidder)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordSettlement(string(settlement.Mode), settlement.Amount.Denom)
	return settlement, nil
}

// WithdrawBid cancels a standing bid and refunds the bidder.
func (n *Node) WithdrawBid(ctx context.Context, bidder [20]byte, assetID string) (*market.Bid, error) {
	var bid *market.Bid
	err := n.apply(ctx, "withdraw_bid", func(e *engines) error {
		var err error
		bid, err = e.market.WithdrawBid(bidder, assetID)
		return err
	})
	return bid, err
}

// Approve grants spender transfer rights over an asset.
func (n *Node) Approve(ctx context.Context, owner [20]byte, assetID string, spender [20]byte, expiresAt uint64) error {
	return n.apply(ctx, "approve", func(e *engines) error {
		return market.FromRegistryError(e.registry.Approve(owner, assetID, spender, expiresAt))
	})
}

// Lock marks an asset as claimed so it cannot be transferred.
func (n *Node) Lock(ctx context.Context, owner [20]byte, assetID string) error {
	return n.apply(ctx, "lock", func(e *engines) error {
		return market.FromRegistryError(e.registry.Lock(owner, assetID))
	})
}

// Unlock clears the claimed flag.
func (n *Node) Unlock(ctx context.Context, owner [20]byte, assetID string) error {
	return n.apply(ctx, "unlock", func(e *engines) error {
		return market.FromRegistryError(e.registry.Unlock(owner, assetID))
	})
}

// Credit deposits funds into an account.
func (n *Node) Credit(ctx context.Context, to [20]byte, denom string, amount *big.Int) error {
	return n.apply(ctx, "credit", func(e *engines) error {
		coin, err := market.SanitizeCoin(market.Coin{Denom: denom, Amount: amount})
		if err != nil {
			return err
		}
		return market.FromCustodyError(e.custody.Credit(to, coin.Denom, coin.Amount))
	})
}

// ApplyGenesis seeds an empty state with balances and assets in a single
// transition.
func (n *Node) ApplyGenesis(ctx context.Context, spec *genesis.Spec) error {
	if spec == nil {
		return fmt.Errorf("core: genesis spec must not be nil")
	}
	if n.Height() != 0 {
		return ErrGenesisApplied
	}
	genesisTime := spec.GenesisTimestamp().Unix()
	return n.apply(ctx, "genesis", func(e *engines) error {
		e.registry.SetNowFunc(func() int64 { return genesisTime })
		e.market.SetNowFunc(func() int64 { return genesisTime })
		minter, hasMinter := spec.MinterAddress()
		if hasMinter {
			if err := e.registry.SetMinter(minter); err != nil {
				return market.FromRegistryError(err)
			}
		}
		for _, bal := range spec.Balances() {
			if err := e.custody.Credit(bal.Address, bal.Denom, bal.Amount); err != nil {
				return market.FromCustodyError(err)
			}
		}
		for _, asset := range spec.AssetEntries() {
			minted, err := e.registry.Mint(minter, asset.Token)
			if err != nil {
				return market.FromRegistryError(err)
			}
			if asset.Ask == nil {
				continue
			}
			if _, err := e.market.PublishAsk(minted.Owner, minted.ID, *asset.Ask); err != nil {
				return err
			}
		}
		return nil
	})
}

// CurrentAsk returns the active ask of an asset.
func (n *Node) CurrentAsk(assetID string) (*market.Ask, error) {
	var ask *market.Ask
	err := n.view(func(e *engines) error {
		var err error
		ask, err = e.market.CurrentAsk(assetID)
		return err
	})
	return ask, err
}

// Bid returns a bidder's standing bid.
func (n *Node) Bid(assetID string, bidder [20]byte) (*market.Bid, error) {
	var bid *market.Bid
	err := n.view(func(e *engines) error {
		var err error
		bid, err = e.market.Bid(assetID, bidder)
		return err
	})
	return bid, err
}

// Bids lists every standing bid on an asset.
func (n *Node) Bids(assetID string) ([]*market.Bid, error) {
	var bids []*market.Bid
	err := n.view(func(e *engines) error {
		var err error
		bids, err = e.market.Bids(assetID)
		return err
	})
	return bids, err
}

// OwnerOf returns the current owner of an asset.
func (n *Node) OwnerOf(assetID string) ([20]byte, error) {
	var owner [20]byte
	err := n.view(func(e *engines) error {
		var err error
		owner, err = e.market.OwnerOf(assetID)
		return err
	})
	return owner, err
}

// Token returns the registry record of an asset.
func (n *Node) Token(assetID string) (*registry.Token, error) {
	var token *registry.Token
	err := n.view(func(e *engines) error {
		id, err := market.NormalizeAssetID(assetID)
		if err != nil {
			return err
		}
		token, err = e.registry.Token(id)
		return market.FromRegistryError(err)
	})
	return token, err
}

// Balance returns an account's spendable balance.
func (n *Node) Balance(addr [20]byte, denom string) (*big.Int, error) {
	var bal *big.Int
	err := n.view(func(e *engines) error {
		normalized, err := market.NormalizeDenom(denom)
		if err != nil {
			return err
		}
		bal, err = e.custody.Balance(addr, normalized)
		return market.FromCustodyError(err)
	})
	return bal, err
}
