package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/crypto"
)

// ModuleName is the name the market's operator address is derived from.
const ModuleName = "market"

// Registry is the ownership collaborator. Errors must be *registry.Error
// values so they can be mapped onto market error kinds.
type Registry interface {
	OwnerOf(assetID string) ([20]byte, error)
	Approve(owner [20]byte, assetID string, spender [20]byte, expiresAt uint64) error
	Revoke(owner [20]byte, assetID string, spender [20]byte) error
	Transfer(spender [20]byte, assetID string, to [20]byte) ([20]byte, error)
}

// Custody holds bidder funds between Place-Bid and settlement.
type Custody interface {
	Hold(from [20]byte, denom string, amount *big.Int) error
	Release(to [20]byte, denom string, amount *big.Int) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine is the marketplace state machine. It runs every operation as a
// straight-line read-modify-write sequence; atomicity across failures is the
// caller's responsibility (see core.Node).
type Engine struct {
	ledger   *Ledger
	registry Registry
	custody  Custody
	emitter  events.Emitter
	nowFn    func() int64
	module   [20]byte
}

// NewEngine creates a market engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		module:  crypto.ModuleAddress(ModuleName),
	}
}

// SetState configures the ledger backend.
func (e *Engine) SetState(state engineState) { e.ledger = NewLedger(state) }

func (e *Engine) SetRegistry(r Registry) { e.registry = r }

func (e *Engine) SetCustody(c Custody) { e.custody = c }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// ModuleAddress returns the operator address used for crossing settlements.
func (e *Engine) ModuleAddress() [20]byte { return e.module }

// Ledger exposes the underlying ask/bid store.
func (e *Engine) Ledger() *Ledger { return e.ledger }

func (e *Engine) ready() error {
	switch {
	case e.ledger == nil:
		return errNilState
	case e.registry == nil:
		return errNilRegistry
	case e.custody == nil:
		return errNilCustody
	}
	return nil
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) ownerOf(assetID string) ([20]byte, error) {
	owner, err := e.registry.OwnerOf(assetID)
	if err != nil {
		return [20]byte{}, FromRegistryError(err)
	}
	return owner, nil
}

// PublishAsk lists assetID at price. Only the current owner may list; the
// market module is approved as transfer operator so a crossing bid can settle
// without the owner's participation. A new ask replaces the previous one.
func (e *Engine) PublishAsk(owner [20]byte, assetID string, price Coin) (*Ask, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	price, err = SanitizeCoin(price)
	if err != nil {
		return nil, err
	}
	if price.Amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: ask price must not be negative", ErrInvalidRequest)
	}
	current, err := e.ownerOf(assetID)
	if err != nil {
		return nil, err
	}
	if current != owner {
		return nil, fmt.Errorf("%w: only the owner may list asset %q", ErrUnauthorized, assetID)
	}
	if err := e.registry.Approve(owner, assetID, e.module, 0); err != nil {
		return nil, FromRegistryError(err)
	}
	ask := &Ask{AssetID: assetID, Seller: owner, Price: price, ListedAt: e.now()}
	if err := e.ledger.SaveAsk(assetID, ask); err != nil {
		return nil, err
	}
	e.emit(NewAskPublishedEvent(ask))
	return ask.Clone(), nil
}

// WithdrawAsk delists assetID and revokes the market operator approval.
func (e *Engine) WithdrawAsk(owner [20]byte, assetID string) (*Ask, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	current, err := e.ownerOf(assetID)
	if err != nil {
		return nil, err
	}
	if current != owner {
		return nil, fmt.Errorf("%w: only the owner may delist asset %q", ErrUnauthorized, assetID)
	}
	ask, err := e.ledger.LoadAsk(assetID)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.RemoveAsk(assetID); err != nil {
		return nil, err
	}
	if err := e.registry.Revoke(owner, assetID, e.module); err != nil {
		return nil, FromRegistryError(err)
	}
	e.emit(NewAskWithdrawnEvent(ask))
	return ask, nil
}

// PlaceBid records bidder's standing offer on assetID, replacing any prior
// offer from the same bidder, and settles immediately when the bid crosses the
// current ask. A zero recipient defaults to the bidder.
func (e *Engine) PlaceBid(assetID string, amount Coin, bidder, recipient [20]byte) (*PlaceBidResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount.Amount == nil || amount.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidBidAmount)
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	amount, err = SanitizeCoin(amount)
	if err != nil {
		return nil, err
	}
	if bidder == ([20]byte{}) {
		return nil, fmt.Errorf("%w: bidder required", ErrInvalidRequest)
	}
	if recipient == ([20]byte{}) {
		recipient = bidder
	}
	owner, err := e.ownerOf(assetID)
	if err != nil {
		return nil, err
	}
	if owner == bidder {
		return nil, fmt.Errorf("%w: owner cannot bid on own asset", ErrUnauthorized)
	}

	prior, err := e.ledger.LoadBid(assetID, bidder)
	switch {
	case err == nil:
		if err := e.custody.Release(bidder, prior.Amount.Denom, prior.Amount.Amount); err != nil {
			return nil, FromCustodyError(err)
		}
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}
	if err := e.custody.Hold(bidder, amount.Denom, amount.Amount); err != nil {
		return nil, FromCustodyError(err)
	}
	bid := &Bid{
		AssetID:   assetID,
		Bidder:    bidder,
		Recipient: recipient,
		Amount:    amount,
		PlacedAt:  e.now(),
	}
	if err := e.ledger.SaveBid(assetID, bidder, bid); err != nil {
		return nil, err
	}
	e.emit(NewBidPlacedEvent(bid))

	result := &PlaceBidResult{Action: ActionBidRecorded, Bid: bid.Clone()}
	ask, err := e.ledger.LoadAsk(assetID)
	if errors.Is(err, ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	// An ask left behind by a previous owner is not an offer to sell.
	if ask.Seller != owner || !bid.Crosses(ask) {
		return result, nil
	}
	settlement, err := e.settle(e.module, bid, SettlementCrossed)
	if err != nil {
		return nil, err
	}
	result.Action = ActionBidSettled
	result.Settlement = settlement
	return result, nil
}

// AcceptBid settles bidder's standing bid on assetID regardless of the ask
// price. Only the current owner may accept.
func (e *Engine) AcceptBid(caller [20]byte, assetID string, bidder [20]byte) (*Settlement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerOf(assetID)
	if err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, fmt.Errorf("%w: only the owner may accept bids on asset %q", ErrUnauthorized, assetID)
	}
	bid, err := e.ledger.LoadBid(assetID, bidder)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: no standing bid from %s", ErrInvalidBidAmount, crypto.FromBytes20(bidder))
	}
	if err != nil {
		return nil, err
	}
	if bid.Amount.Amount == nil || bid.Amount.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: standing bid has no amount", ErrInvalidBidAmount)
	}
	return e.settle(caller, bid, SettlementAccepted)
}

// settle transfers the asset to the winning bid's recipient, consumes the bid
// and the ask, and releases the held funds to the previous owner. The caller
// must discard all writes if an error is returned.
func (e *Engine) settle(spender [20]byte, bid *Bid, mode SettlementMode) (*Settlement, error) {
	seller, err := e.registry.Transfer(spender, bid.AssetID, bid.Recipient)
	if err != nil {
		return nil, FromRegistryError(err)
	}
	if err := e.ledger.RemoveBid(bid.AssetID, bid.Bidder); err != nil {
		return nil, err
	}
	// An ask exists only while the asset is unsold; the buyer re-lists to sell.
	if err := e.ledger.RemoveAsk(bid.AssetID); err != nil {
		return nil, err
	}
	if err := e.custody.Release(seller, bid.Amount.Denom, bid.Amount.Amount); err != nil {
		return nil, FromCustodyError(err)
	}
	settlement := &Settlement{
		AssetID:   bid.AssetID,
		Seller:    seller,
		Bidder:    bid.Bidder,
		Recipient: bid.Recipient,
		Amount:    bid.Amount.Clone(),
		Mode:      mode,
	}
	e.emit(NewSettledEvent(settlement))
	return settlement, nil
}

// WithdrawBid cancels bidder's standing bid and returns the held funds.
func (e *Engine) WithdrawBid(bidder [20]byte, assetID string) (*Bid, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	bid, err := e.ledger.LoadBid(assetID, bidder)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.RemoveBid(assetID, bidder); err != nil {
		return nil, err
	}
	if err := e.custody.Release(bidder, bid.Amount.Denom, bid.Amount.Amount); err != nil {
		return nil, FromCustodyError(err)
	}
	e.emit(NewBidWithdrawnEvent(bid))
	return bid, nil
}

// CurrentAsk returns the active ask for assetID.
func (e *Engine) CurrentAsk(assetID string) (*Ask, error) {
	if e.ledger == nil {
		return nil, errNilState
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	return e.ledger.LoadAsk(assetID)
}

// Bid returns bidder's standing bid on assetID.
func (e *Engine) Bid(assetID string, bidder [20]byte) (*Bid, error) {
	if e.ledger == nil {
		return nil, errNilState
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	return e.ledger.LoadBid(assetID, bidder)
}

// Bids lists every standing bid on assetID in placement order.
func (e *Engine) Bids(assetID string) ([]*Bid, error) {
	if e.ledger == nil {
		return nil, errNilState
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return nil, err
	}
	bidders, err := e.ledger.Bidders(assetID)
	if err != nil {
		return nil, err
	}
	out := make([]*Bid, 0, len(bidders))
	for _, bidder := range bidders {
		bid, err := e.ledger.LoadBid(assetID, bidder)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, bid)
	}
	return out, nil
}

// OwnerOf returns the registry's current owner of assetID.
func (e *Engine) OwnerOf(assetID string) ([20]byte, error) {
	if e.registry == nil {
		return [20]byte{}, errNilRegistry
	}
	assetID, err := NormalizeAssetID(assetID)
	if err != nil {
		return [20]byte{}, err
	}
	return e.ownerOf(assetID)
}
