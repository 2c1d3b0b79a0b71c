package maker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dexquote/marketmaker/pkg/models"
)

func ownEvent(status models.OrderStatus, side models.Side, qty, filled string) models.OrderEvent {
	return models.OrderEvent{
		Pair:           "TEAM1/AVAX",
		OrderID:        "own-1",
		Trader:         "0xABCDEF0123456789",
		Side:           side,
		Status:         status,
		Price:          dec("99.5"),
		Quantity:       dec(qty),
		QuantityFilled: dec(filled),
	}
}

func thirdPartyEvent(status models.OrderStatus, side models.Side, price string) models.OrderEvent {
	return models.OrderEvent{
		Pair:    "TEAM1/AVAX",
		OrderID: "other-1",
		Trader:  "0x9999999999999999",
		Side:    side,
		Status:  status,
		Price:   dec(price),
		Quantity: dec("3"),
	}
}

func makerWithBook(t *testing.T, bestBid, bestAsk string) *MarketMaker {
	t.Helper()
	m := newTestMaker(&mockClient{})
	m.state = &models.MarketState{
		BestBidPrice: dec(bestBid),
		BestAskPrice: dec(bestAsk),
		MidPrice:     ComputeMid(dec(bestBid), dec(bestAsk), dec("1.0"), dec("100")),
	}
	return m
}

func assertTriggered(t *testing.T, m *MarketMaker) {
	t.Helper()
	select {
	case <-m.trigger:
	default:
		t.Fatal("expected a reconciliation to be requested")
	}
}

func assertNotTriggered(t *testing.T, m *MarketMaker) {
	t.Helper()
	select {
	case tr := <-m.trigger:
		t.Fatalf("unexpected reconciliation request: %s", tr.reason)
	default:
	}
}

func TestHandleOrderEvent_IgnoresOtherPairs(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	ev := ownEvent(models.OrderStatusFilled, models.SideBuy, "5", "5")
	ev.Pair = "OTHER/AVAX"

	m.HandleOrderEvent(ev)
	assertNotTriggered(t, m)
}

func TestHandleOrderEvent_OwnFilledForcesReconcile(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(ownEvent(models.OrderStatusFilled, models.SideBuy, "5", "5"))
	assertTriggered(t, m)
}

func TestHandleOrderEvent_OwnTerminalStatesForceResync(t *testing.T) {
	for _, status := range []models.OrderStatus{
		models.OrderStatusRejected,
		models.OrderStatusExpired,
		models.OrderStatusKilled,
	} {
		m := makerWithBook(t, "99", "101")
		m.HandleOrderEvent(ownEvent(status, models.SideSell, "5", "0"))
		assertTriggered(t, m)
	}
}

func TestHandleOrderEvent_OwnTraderCaseInsensitive(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	ev := ownEvent(models.OrderStatusFilled, models.SideBuy, "5", "5")
	ev.Trader = "0xabcdef0123456789"

	m.HandleOrderEvent(ev)
	assertTriggered(t, m)
}

func TestHandleOrderEvent_PartialFillOutOfToleranceReconciles(t *testing.T) {
	// Remaining 1.0 against target 5.0 with 20% tolerance deviates far
	// beyond the band and must replenish the order.
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(ownEvent(models.OrderStatusPartial, models.SideBuy, "5", "4"))
	assertTriggered(t, m)
}

func TestHandleOrderEvent_PartialMicroFillDoesNotFlap(t *testing.T) {
	// Remaining 4.9 of target 5.0 sits inside the 20% band.
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(ownEvent(models.OrderStatusPartial, models.SideBuy, "5", "0.1"))
	assertNotTriggered(t, m)
}

func TestHandleOrderEvent_ThirdPartyNewAboveBestBid(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(thirdPartyEvent(models.OrderStatusNew, models.SideBuy, "99.5"))
	assertTriggered(t, m)
}

func TestHandleOrderEvent_ThirdPartyNewBelowBestBid(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(thirdPartyEvent(models.OrderStatusNew, models.SideBuy, "98.5"))
	assertNotTriggered(t, m)
}

func TestHandleOrderEvent_ThirdPartyNewBelowBestAsk(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(thirdPartyEvent(models.OrderStatusNew, models.SideSell, "100.5"))
	assertTriggered(t, m)
}

func TestHandleOrderEvent_ThirdPartyRemovalAtBestLevel(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(thirdPartyEvent(models.OrderStatusCancelled, models.SideBuy, "99"))
	assertTriggered(t, m)

	m = makerWithBook(t, "99", "101")
	m.HandleOrderEvent(thirdPartyEvent(models.OrderStatusFilled, models.SideSell, "101"))
	assertTriggered(t, m)
}

func TestHandleOrderEvent_ThirdPartyRemovalAwayFromBest(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(thirdPartyEvent(models.OrderStatusCancelled, models.SideBuy, "95"))
	assertNotTriggered(t, m)
}

func TestRequestReconcile_Coalesces(t *testing.T) {
	m := makerWithBook(t, "99", "101")

	m.requestReconcile("first", true)
	m.requestReconcile("second", true)
	m.requestReconcile("third", true)

	// Only one request may be pending at a time.
	assertTriggered(t, m)
	assertNotTriggered(t, m)
}

func TestHandleTradeEvent_NeverTriggers(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleTradeEvent(models.TradeEvent{
		Pair:   "TEAM1/AVAX",
		Maker:  "0x1",
		Taker:  "0x2",
		Price:  dec("100"),
		Amount: dec("1"),
	})
	assertNotTriggered(t, m)
}

func TestHandleOrderEvent_TriggersCarrySettleDelay(t *testing.T) {
	m := makerWithBook(t, "99", "101")
	m.HandleOrderEvent(ownEvent(models.OrderStatusFilled, models.SideBuy, "5", "5"))

	select {
	case tr := <-m.trigger:
		assert.True(t, tr.settle, "event-driven passes must wait for exchange state to settle")
	default:
		t.Fatal("expected a reconciliation to be requested")
	}
}
