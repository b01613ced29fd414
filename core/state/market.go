package state

import (
	"encoding/hex"
	"fmt"

	"nftmarket/native/market"
)

var (
	marketAskPrefix     = "market/ask/"
	marketBidPrefix     = "market/bid/"
	marketBiddersPrefix = "market/bidders/"
)

// MarketAskKey returns the state key of the ask for assetID.
func MarketAskKey(assetID string) []byte {
	return []byte(marketAskPrefix + assetID)
}

// MarketBidKey returns the state key of bidder's bid on assetID. The bidder is
// a fixed-width hex suffix so asset ids containing '/' cannot collide.
func MarketBidKey(assetID string, bidder [20]byte) []byte {
	return []byte(marketBidPrefix + assetID + "/" + hex.EncodeToString(bidder[:]))
}

// MarketBiddersKey returns the state key of the bidder index for assetID.
func MarketBiddersKey(assetID string) []byte {
	return []byte(marketBiddersPrefix + assetID)
}

// MarketAsk loads the ask for assetID.
func (m *Manager) MarketAsk(assetID string) (*market.Ask, bool, error) {
	var ask market.Ask
	ok, err := m.KVGet(MarketAskKey(assetID), &ask)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &ask, true, nil
}

// MarketPutAsk stores the ask under its asset id.
func (m *Manager) MarketPutAsk(ask *market.Ask) error {
	if ask == nil {
		return fmt.Errorf("market: nil ask")
	}
	return m.KVPut(MarketAskKey(ask.AssetID), ask)
}

// MarketDeleteAsk removes the ask for assetID.
func (m *Manager) MarketDeleteAsk(assetID string) error {
	return m.KVDelete(MarketAskKey(assetID))
}

// MarketBid loads bidder's bid on assetID.
func (m *Manager) MarketBid(assetID string, bidder [20]byte) (*market.Bid, bool, error) {
	var bid market.Bid
	ok, err := m.KVGet(MarketBidKey(assetID, bidder), &bid)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &bid, true, nil
}

// MarketPutBid stores the bid and records the bidder in the asset's index.
func (m *Manager) MarketPutBid(bid *market.Bid) error {
	if bid == nil {
		return fmt.Errorf("market: nil bid")
	}
	if err := m.KVPut(MarketBidKey(bid.AssetID, bid.Bidder), bid); err != nil {
		return err
	}
	return m.KVAppend(MarketBiddersKey(bid.AssetID), bid.Bidder[:])
}

// MarketDeleteBid removes the bid and its index entry.
func (m *Manager) MarketDeleteBid(assetID string, bidder [20]byte) error {
	if err := m.KVDelete(MarketBidKey(assetID, bidder)); err != nil {
		return err
	}
	return m.KVRemoveFromList(MarketBiddersKey(assetID), bidder[:])
}

// MarketBidders lists the bidders with a standing bid on assetID in
// placement order.
func (m *Manager) MarketBidders(assetID string) ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(MarketBiddersKey(assetID), &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("market: corrupt bidder index entry for %q", assetID)
		}
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}
