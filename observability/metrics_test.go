package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"nftmarket/core/types"
)

type testEvent struct{ typ string }

func (e testEvent) EventType() string   { return e.typ }
func (e testEvent) Event() *types.Event { return &types.Event{Type: e.typ} }

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.requests.WithLabelValues("market", "placeBid", "error"))
	m.Observe("market", "placeBid", -32030, 5*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.requests.WithLabelValues("market", "placeBid", "error")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("market", "placeBid", "-32030")))

	m.RecordThrottle("", "")
	require.Equal(t, float64(1), testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")))
}

func TestMarketMetrics(t *testing.T) {
	m := Market()
	m.RecordOperation("place_bid", "", time.Millisecond)
	m.RecordOperation("place_bid", "InvalidBidAmount", time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("place_bid", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("place_bid", "InvalidBidAmount")))

	m.RecordSettlement("crossed", " TOKEN ")
	require.Equal(t, float64(1), testutil.ToFloat64(m.settlements.WithLabelValues("crossed", "token")))

	m.SetHeight(7)
	require.Equal(t, float64(7), testutil.ToFloat64(m.height))

	var nilMetrics *MarketMetrics
	nilMetrics.RecordOperation("x", "", 0)
}

func TestEventMetricsEmitter(t *testing.T) {
	m := Events()
	m.Emit(testEvent{typ: "market.settled"})
	m.Emit(testEvent{typ: "market.settled"})
	require.Equal(t, float64(2), testutil.ToFloat64(m.emitted.WithLabelValues("market.settled")))
}
