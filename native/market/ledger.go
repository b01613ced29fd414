package market

import (
	"fmt"

	"nftmarket/crypto"
)

type engineState interface {
	MarketAsk(assetID string) (*Ask, bool, error)
	MarketPutAsk(*Ask) error
	MarketDeleteAsk(assetID string) error
	MarketBid(assetID string, bidder [20]byte) (*Bid, bool, error)
	MarketPutBid(*Bid) error
	MarketDeleteBid(assetID string, bidder [20]byte) error
	MarketBidders(assetID string) ([][20]byte, error)
}

// Ledger is the data-access layer for asks and bids. It applies no business
// rules; a missing record is reported with an error wrapping ErrNotFound.
type Ledger struct {
	state engineState
}

// NewLedger wraps the supplied state backend.
func NewLedger(state engineState) *Ledger {
	return &Ledger{state: state}
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return nil
}

// LoadAsk returns the ask for assetID or ErrAskNotFound.
func (l *Ledger) LoadAsk(assetID string) (*Ask, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	ask, ok, err := l.state.MarketAsk(assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: load ask: %v", ErrStorage, err)
	}
	if !ok || ask == nil {
		return nil, fmt.Errorf("%w: asset %q", ErrAskNotFound, assetID)
	}
	return ask.Clone(), nil
}

// SaveAsk stores ask under assetID, replacing any existing ask.
func (l *Ledger) SaveAsk(assetID string, ask *Ask) error {
	if err := l.ready(); err != nil {
		return err
	}
	if ask == nil {
		return fmt.Errorf("%w: nil ask", ErrInvalidRequest)
	}
	record := ask.Clone()
	record.AssetID = assetID
	if err := l.state.MarketPutAsk(record); err != nil {
		return fmt.Errorf("%w: save ask: %v", ErrStorage, err)
	}
	return nil
}

// RemoveAsk deletes the ask for assetID. Removing a missing ask is a no-op.
func (l *Ledger) RemoveAsk(assetID string) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := l.state.MarketDeleteAsk(assetID); err != nil {
		return fmt.Errorf("%w: remove ask: %v", ErrStorage, err)
	}
	return nil
}

// LoadBid returns the standing bid of bidder on assetID or ErrBidNotFound.
func (l *Ledger) LoadBid(assetID string, bidder [20]byte) (*Bid, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	bid, ok, err := l.state.MarketBid(assetID, bidder)
	if err != nil {
		return nil, fmt.Errorf("%w: load bid: %v", ErrStorage, err)
	}
	if !ok || bid == nil {
		return nil, fmt.Errorf("%w: asset %q bidder %s", ErrBidNotFound, assetID, crypto.FromBytes20(bidder))
	}
	return bid.Clone(), nil
}

// SaveBid stores bid under (assetID, bidder), overwriting the prior bid.
func (l *Ledger) SaveBid(assetID string, bidder [20]byte, bid *Bid) error {
	if err := l.ready(); err != nil {
		return err
	}
	if bid == nil {
		return fmt.Errorf("%w: nil bid", ErrInvalidRequest)
	}
	record := bid.Clone()
	record.AssetID = assetID
	record.Bidder = bidder
	if err := l.state.MarketPutBid(record); err != nil {
		return fmt.Errorf("%w: save bid: %v", ErrStorage, err)
	}
	return nil
}

// RemoveBid deletes the bid for (assetID, bidder). Removing a missing bid is a
// no-op.
func (l *Ledger) RemoveBid(assetID string, bidder [20]byte) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := l.state.MarketDeleteBid(assetID, bidder); err != nil {
		return fmt.Errorf("%w: remove bid: %v", ErrStorage, err)
	}
	return nil
}

// Bidders lists every bidder with a standing bid on assetID in placement
// order.
func (l *Ledger) Bidders(assetID string) ([][20]byte, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	bidders, err := l.state.MarketBidders(assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: list bidders: %v", ErrStorage, err)
	}
	return bidders, nil
}
