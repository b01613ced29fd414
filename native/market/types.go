package market

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/holiman/uint256"
)

// MaxAssetIDLength bounds the opaque asset identifier.
const MaxAssetIDLength = 256

var denomPattern = regexp.MustCompile(`^[a-z][a-z0-9/:._-]{1,127}$`)

// Coin is an amount tagged with its denomination.
type Coin struct {
	Denom  string
	Amount *big.Int
}

// NewCoin builds a coin from an int64 amount. Intended for tests and genesis
// helpers.
func NewCoin(denom string, amount int64) Coin {
	return Coin{Denom: denom, Amount: big.NewInt(amount)}
}

// Clone returns a deep copy of the coin.
func (c Coin) Clone() Coin {
	return Coin{Denom: c.Denom, Amount: cloneBigInt(c.Amount)}
}

// Matches reports whether both coins use the same denomination.
func (c Coin) Matches(other Coin) bool {
	return c.Denom == other.Denom
}

func (c Coin) String() string {
	return fmt.Sprintf("%s%s", cloneBigInt(c.Amount).String(), c.Denom)
}

// Ask is a seller's published minimum price for one asset.
type Ask struct {
	AssetID  string
	Seller   [20]byte
	Price    Coin
	ListedAt uint64
}

// Clone returns a deep copy of the ask.
func (a *Ask) Clone() *Ask {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Price = a.Price.Clone()
	return &clone
}

// Bid is a bidder's standing offer for one asset. Recipient receives the asset
// if the bid wins.
type Bid struct {
	AssetID   string
	Bidder    [20]byte
	Recipient [20]byte
	Amount    Coin
	PlacedAt  uint64
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Amount = b.Amount.Clone()
	return &clone
}

// Crosses reports whether the bid strictly exceeds the ask price in the same
// denomination. Differing denominations never cross.
func (b *Bid) Crosses(ask *Ask) bool {
	if b == nil || ask == nil {
		return false
	}
	if !b.Amount.Matches(ask.Price) {
		return false
	}
	return cloneBigInt(b.Amount.Amount).Cmp(cloneBigInt(ask.Price.Amount)) > 0
}

// Action records what a Place-Bid call did.
type Action string

const (
	ActionBidRecorded Action = "bid_recorded"
	ActionBidSettled  Action = "bid_settled"
)

// SettlementMode distinguishes explicit acceptance from automatic crossing.
type SettlementMode string

const (
	SettlementAccepted SettlementMode = "accepted"
	SettlementCrossed  SettlementMode = "crossed"
)

// Settlement describes a completed transfer-and-settle.
type Settlement struct {
	AssetID   string
	Seller    [20]byte
	Bidder    [20]byte
	Recipient [20]byte
	Amount    Coin
	Mode      SettlementMode
}

// PlaceBidResult is returned by Engine.PlaceBid.
type PlaceBidResult struct {
	Action     Action
	Bid        *Bid
	Settlement *Settlement
}

// NormalizeAssetID trims the identifier and enforces the length bounds.
func NormalizeAssetID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("%w: asset id required", ErrInvalidRequest)
	}
	if len(trimmed) > MaxAssetIDLength {
		return "", fmt.Errorf("%w: asset id exceeds %d bytes", ErrInvalidRequest, MaxAssetIDLength)
	}
	return trimmed, nil
}

// NormalizeDenom returns the canonical lower-case denomination.
func NormalizeDenom(denom string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(denom))
	if !denomPattern.MatchString(normalized) {
		return "", fmt.Errorf("%w: invalid denomination %q", ErrInvalidRequest, denom)
	}
	return normalized, nil
}

// SanitizeCoin normalises the denomination and checks that the amount fits in
// 256 bits. The sign is not checked; callers apply their own positivity rules.
func SanitizeCoin(c Coin) (Coin, error) {
	denom, err := NormalizeDenom(c.Denom)
	if err != nil {
		return Coin{}, err
	}
	amount := cloneBigInt(c.Amount)
	abs := new(big.Int).Abs(amount)
	if _, overflow := uint256.FromBig(abs); overflow {
		return Coin{}, fmt.Errorf("%w: amount exceeds 256 bits", ErrInvalidRequest)
	}
	return Coin{Denom: denom, Amount: amount}, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
