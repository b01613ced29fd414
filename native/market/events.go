package market

import (
	"strconv"

	"nftmarket/core/types"
	"nftmarket/crypto"
)

const (
	EventTypeAskPublished = "market.ask.published"
	EventTypeAskWithdrawn = "market.ask.withdrawn"
	EventTypeBidPlaced    = "market.bid.placed"
	EventTypeBidWithdrawn = "market.bid.withdrawn"
	EventTypeSettled      = "market.settled"
)

// NewAskPublishedEvent returns the payload emitted when an ask is listed.
func NewAskPublishedEvent(a *Ask) *types.Event { return newAskEvent(EventTypeAskPublished, a) }

// NewAskWithdrawnEvent returns the payload emitted when the owner delists.
func NewAskWithdrawnEvent(a *Ask) *types.Event { return newAskEvent(EventTypeAskWithdrawn, a) }

func NewBidPlacedEvent(b *Bid) *types.Event { return newBidEvent(EventTypeBidPlaced, b) }

func NewBidWithdrawnEvent(b *Bid) *types.Event { return newBidEvent(EventTypeBidWithdrawn, b) }

// NewSettledEvent returns the payload for a completed transfer-and-settle.
func NewSettledEvent(s *Settlement) *types.Event {
	attrs := make(map[string]string)
	if s == nil {
		return &types.Event{Type: EventTypeSettled, Attributes: attrs}
	}
	attrs["assetId"] = s.AssetID
	attrs["seller"] = crypto.FromBytes20(s.Seller).String()
	attrs["bidder"] = crypto.FromBytes20(s.Bidder).String()
	attrs["recipient"] = crypto.FromBytes20(s.Recipient).String()
	attrs["denom"] = s.Amount.Denom
	attrs["amount"] = cloneBigInt(s.Amount.Amount).String()
	attrs["mode"] = string(s.Mode)
	return &types.Event{Type: EventTypeSettled, Attributes: attrs}
}

func newAskEvent(eventType string, a *Ask) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["assetId"] = a.AssetID
	attrs["seller"] = crypto.FromBytes20(a.Seller).String()
	attrs["denom"] = a.Price.Denom
	attrs["price"] = cloneBigInt(a.Price.Amount).String()
	attrs["listedAt"] = strconv.FormatUint(a.ListedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newBidEvent(eventType string, b *Bid) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["assetId"] = b.AssetID
	attrs["bidder"] = crypto.FromBytes20(b.Bidder).String()
	attrs["recipient"] = crypto.FromBytes20(b.Recipient).String()
	attrs["denom"] = b.Amount.Denom
	attrs["amount"] = cloneBigInt(b.Amount.Amount).String()
	attrs["placedAt"] = strconv.FormatUint(b.PlacedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
