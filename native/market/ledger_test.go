package market

import (
	"errors"
	"testing"
)

func TestLedgerMissingKeysAreNotFound(t *testing.T) {
	ledger := NewLedger(newMockState())

	_, err := ledger.LoadAsk("a")
	if !errors.Is(err, ErrAskNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ask not found, got %v", err)
	}
	_, err = ledger.LoadBid("a", bob)
	if !errors.Is(err, ErrBidNotFound) {
		t.Fatalf("expected bid not found, got %v", err)
	}
	if errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("not found must be distinct from validation errors")
	}
}

func TestLedgerSaveLoadRemove(t *testing.T) {
	state := newMockState()
	ledger := NewLedger(state)

	ask := &Ask{Seller: alice, Price: NewCoin("token", 5)}
	if err := ledger.SaveAsk("a", ask); err != nil {
		t.Fatalf("save ask: %v", err)
	}
	loaded, err := ledger.LoadAsk("a")
	if err != nil {
		t.Fatalf("load ask: %v", err)
	}
	if loaded.AssetID != "a" || loaded.Price.Amount.Int64() != 5 {
		t.Fatalf("unexpected ask %+v", loaded)
	}
	loaded.Price.Amount.SetInt64(99)
	again, _ := ledger.LoadAsk("a")
	if again.Price.Amount.Int64() != 5 {
		t.Fatalf("loaded asks must be copies")
	}

	bid := &Bid{Recipient: bob, Amount: NewCoin("token", 3)}
	if err := ledger.SaveBid("a", bob, bid); err != nil {
		t.Fatalf("save bid: %v", err)
	}
	if err := ledger.SaveBid("a", carol, bid); err != nil {
		t.Fatalf("save bid: %v", err)
	}
	bidders, err := ledger.Bidders("a")
	if err != nil {
		t.Fatalf("bidders: %v", err)
	}
	if len(bidders) != 2 || bidders[0] != bob || bidders[1] != carol {
		t.Fatalf("unexpected bidders %x", bidders)
	}

	if err := ledger.RemoveBid("a", bob); err != nil {
		t.Fatalf("remove bid: %v", err)
	}
	if err := ledger.RemoveBid("a", bob); err != nil {
		t.Fatalf("removing twice should be a no-op: %v", err)
	}
	if _, err := ledger.LoadBid("a", bob); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bid should be gone")
	}
	if err := ledger.RemoveAsk("a"); err != nil {
		t.Fatalf("remove ask: %v", err)
	}
	if _, err := ledger.LoadAsk("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ask should be gone")
	}
}

func TestLedgerStorageFailure(t *testing.T) {
	state := newMockState()
	state.failPutBid = true
	ledger := NewLedger(state)
	err := ledger.SaveBid("a", bob, &Bid{Amount: NewCoin("token", 1)})
	if KindOf(err) != KindStorage {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestLedgerWithoutState(t *testing.T) {
	var ledger *Ledger
	if _, err := ledger.LoadAsk("a"); err == nil {
		t.Fatalf("expected error from unconfigured ledger")
	}
}
