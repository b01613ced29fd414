package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"nftmarket/crypto"
	"nftmarket/indexer"
	"nftmarket/native/market"
	"nftmarket/native/registry"
)

// CoinParam carries amounts as decimal strings so 256-bit values survive JSON.
type CoinParam struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

func (c CoinParam) coin() (market.Coin, error) {
	raw := strings.TrimSpace(c.Amount)
	if raw == "" {
		return market.Coin{}, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return market.Coin{}, fmt.Errorf("invalid amount %q", c.Amount)
	}
	return market.Coin{Denom: c.Denom, Amount: amount}, nil
}

func coinParamFrom(c market.Coin) CoinParam {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	return CoinParam{Denom: c.Denom, Amount: amount}
}

type MintParams struct {
	AssetID     string     `json:"assetId"`
	Owner       string     `json:"owner,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Image       string     `json:"image,omitempty"`
	Ask         *CoinParam `json:"ask,omitempty"`
}

type PublishAskParams struct {
	AssetID string    `json:"assetId"`
	Price   CoinParam `json:"price"`
}

type AssetParams struct {
	AssetID string `json:"assetId"`
}

type PlaceBidParams struct {
	AssetID   string    `json:"assetId"`
	Amount    CoinParam `json:"amount"`
	Bidder    string    `json:"bidder"`
	Recipient string    `json:"recipient,omitempty"`
}

type BidderParams struct {
	AssetID string `json:"assetId"`
	Bidder  string `json:"bidder"`
}

type ApproveParams struct {
	AssetID   string `json:"assetId"`
	Spender   string `json:"spender"`
	ExpiresAt uint64 `json:"expiresAt,omitempty"`
}

type SalesParams struct {
	AssetID string `json:"assetId,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type EventsParams struct {
	Type    string `json:"type,omitempty"`
	AssetID string `json:"assetId,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type BalanceParams struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
}

type AskResult struct {
	AssetID  string    `json:"assetId"`
	Seller   string    `json:"seller"`
	Price    CoinParam `json:"price"`
	ListedAt uint64    `json:"listedAt"`
}

func askResult(a *market.Ask) *AskResult {
	if a == nil {
		return nil
	}
	return &AskResult{
		AssetID:  a.AssetID,
		Seller:   crypto.FromBytes20(a.Seller).String(),
		Price:    coinParamFrom(a.Price),
		ListedAt: a.ListedAt,
	}
}

type BidResult struct {
	AssetID   string    `json:"assetId"`
	Bidder    string    `json:"bidder"`
	Recipient string    `json:"recipient"`
	Amount    CoinParam `json:"amount"`
	PlacedAt  uint64    `json:"placedAt"`
}

func bidResult(b *market.Bid) *BidResult {
	if b == nil {
		return nil
	}
	return &BidResult{
		AssetID:   b.AssetID,
		Bidder:    crypto.FromBytes20(b.Bidder).String(),
		Recipient: crypto.FromBytes20(b.Recipient).String(),
		Amount:    coinParamFrom(b.Amount),
		PlacedAt:  b.PlacedAt,
	}
}

type SettlementResult struct {
	AssetID   string    `json:"assetId"`
	Seller    string    `json:"seller"`
	Bidder    string    `json:"bidder"`
	Recipient string    `json:"recipient"`
	Amount    CoinParam `json:"amount"`
	Mode      string    `json:"mode"`
}

func settlementResult(s *market.Settlement) *SettlementResult {
	if s == nil {
		return nil
	}
	return &SettlementResult{
		AssetID:   s.AssetID,
		Seller:    crypto.FromBytes20(s.Seller).String(),
		Bidder:    crypto.FromBytes20(s.Bidder).String(),
		Recipient: crypto.FromBytes20(s.Recipient).String(),
		Amount:    coinParamFrom(s.Amount),
		Mode:      string(s.Mode),
	}
}

type PlaceBidResult struct {
	Action     string            `json:"action"`
	Bid        *BidResult        `json:"bid"`
	Settlement *SettlementResult `json:"settlement,omitempty"`
}

type MintResult struct {
	Token *TokenResult `json:"token"`
	Ask   *AskResult   `json:"ask,omitempty"`
}

type ApprovalResult struct {
	Spender   string `json:"spender"`
	ExpiresAt uint64 `json:"expiresAt,omitempty"`
}

type TokenResult struct {
	ID          string           `json:"id"`
	Owner       string           `json:"owner"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Image       string           `json:"image,omitempty"`
	Approvals   []ApprovalResult `json:"approvals,omitempty"`
	Locked      bool             `json:"locked"`
	MintedAt    uint64           `json:"mintedAt"`
}

func tokenResult(t *registry.Token) *TokenResult {
	if t == nil {
		return nil
	}
	out := &TokenResult{
		ID:          t.ID,
		Owner:       crypto.FromBytes20(t.Owner).String(),
		Name:        t.Name,
		Description: t.Description,
		Image:       t.Image,
		Locked:      t.Locked,
		MintedAt:    t.MintedAt,
	}
	for _, approval := range t.Approvals {
		out.Approvals = append(out.Approvals, ApprovalResult{
			Spender:   crypto.FromBytes20(approval.Spender).String(),
			ExpiresAt: approval.ExpiresAt,
		})
	}
	return out
}

type SaleResult struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"assetId"`
	Seller    string    `json:"seller"`
	Bidder    string    `json:"bidder"`
	Recipient string    `json:"recipient"`
	Amount    CoinParam `json:"amount"`
	Mode      string    `json:"mode"`
	SettledAt time.Time `json:"settledAt"`
}

func saleResult(s indexer.Sale) SaleResult {
	return SaleResult{
		ID:        s.ID.String(),
		AssetID:   s.AssetID,
		Seller:    s.Seller,
		Bidder:    s.Bidder,
		Recipient: s.Recipient,
		Amount:    CoinParam{Denom: s.Denom, Amount: s.Amount},
		Mode:      s.Mode,
		SettledAt: s.CreatedAt,
	}
}

type EventResult struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	AssetID    string            `json:"assetId,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

func eventResult(rec indexer.EventRecord) (EventResult, error) {
	attrs := map[string]string{}
	if rec.Attributes != "" {
		if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
			return EventResult{}, fmt.Errorf("event %s: decode attributes: %w", rec.ID, err)
		}
	}
	return EventResult{
		ID:         rec.ID.String(),
		Type:       rec.Type,
		AssetID:    rec.AssetID,
		Attributes: attrs,
		RecordedAt: rec.CreatedAt,
	}, nil
}

type BalanceResult struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
	Amount  string `json:"amount"`
}

type StatusResult struct {
	Height       uint64 `json:"height"`
	Root         string `json:"root"`
	MarketModule string `json:"marketModule"`
	CustodyVault string `json:"custodyVault"`
	Minter       string `json:"minter,omitempty"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("parameter object required")
	}
	dec := json.NewDecoder(strings.NewReader(string(req.Params[0])))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid parameter object: %w", err)
	}
	return nil
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseMarketAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}
