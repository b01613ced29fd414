package registry

import (
	"strconv"

	"nftmarket/core/types"
	"nftmarket/crypto"
)

const (
	EventTypeMinted      = "registry.minted"
	EventTypeTransferred = "registry.transferred"
	EventTypeApproved    = "registry.approved"
	EventTypeRevoked     = "registry.revoked"
	EventTypeLocked      = "registry.locked"
	EventTypeUnlocked    = "registry.unlocked"
	EventTypeMinterSet   = "registry.minter_set"
)

func NewMinterSetEvent(minter [20]byte) *types.Event {
	return &types.Event{Type: EventTypeMinterSet, Attributes: map[string]string{
		"minter": crypto.FromBytes20(minter).String(),
	}}
}

func NewMintedEvent(minter [20]byte, t *Token) *types.Event {
	attrs := tokenAttributes(t)
	attrs["minter"] = crypto.FromBytes20(minter).String()
	return &types.Event{Type: EventTypeMinted, Attributes: attrs}
}

func NewTransferredEvent(t *Token, from, spender [20]byte) *types.Event {
	attrs := tokenAttributes(t)
	attrs["from"] = crypto.FromBytes20(from).String()
	attrs["spender"] = crypto.FromBytes20(spender).String()
	return &types.Event{Type: EventTypeTransferred, Attributes: attrs}
}

func NewApprovedEvent(t *Token, spender [20]byte, expiresAt uint64) *types.Event {
	attrs := tokenAttributes(t)
	attrs["spender"] = crypto.FromBytes20(spender).String()
	attrs["expiresAt"] = strconv.FormatUint(expiresAt, 10)
	return &types.Event{Type: EventTypeApproved, Attributes: attrs}
}

func NewRevokedEvent(t *Token, spender [20]byte) *types.Event {
	attrs := tokenAttributes(t)
	attrs["spender"] = crypto.FromBytes20(spender).String()
	return &types.Event{Type: EventTypeRevoked, Attributes: attrs}
}

// NewLockEvent emits registry.locked or registry.unlocked depending on the
// token's current flag.
func NewLockEvent(t *Token) *types.Event {
	eventType := EventTypeUnlocked
	if t != nil && t.Locked {
		eventType = EventTypeLocked
	}
	return &types.Event{Type: eventType, Attributes: tokenAttributes(t)}
}

func tokenAttributes(t *Token) map[string]string {
	attrs := make(map[string]string)
	if t == nil {
		return attrs
	}
	attrs["assetId"] = t.ID
	attrs["owner"] = crypto.FromBytes20(t.Owner).String()
	return attrs
}
