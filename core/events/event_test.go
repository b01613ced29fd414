package events

import (
	"testing"

	"nftmarket/core/types"
)

type testEvent struct{ kind string }

func (e testEvent) EventType() string { return e.kind }

func (e testEvent) Event() *types.Event { return &types.Event{Type: e.kind} }

type recorder struct{ seen []string }

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	buf := &Buffer{}
	buf.Emit(testEvent{kind: "a"})
	buf.Emit(nil)
	buf.Emit(testEvent{kind: "b"})
	if got := len(buf.Events()); got != 2 {
		t.Fatalf("expected 2 buffered events, got %d", got)
	}

	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.seen) != 2 || rec.seen[0] != "a" || rec.seen[1] != "b" {
		t.Fatalf("unexpected flush order: %v", rec.seen)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer to be empty after flush")
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	Fanout{first, nil, second}.Emit(testEvent{kind: "market.bid.placed"})
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("expected both recorders to receive the event")
	}
	var _ Payload = testEvent{}
	NoopEmitter{}.Emit(testEvent{})
}
