package maker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dexquote/marketmaker/pkg/models"
)

func bookWith(bids, asks []models.BookLevel) *models.OrderBook {
	return &models.OrderBook{Pair: "TEAM1/AVAX", Bids: bids, Asks: asks}
}

func TestSynchronize_RebuildsStateWhole(t *testing.T) {
	client := &mockClient{}
	m := newTestMaker(client)

	orders := []models.OrderRecord{
		openOrder("b1", models.SideBuy, "99.4", "5", "0"),
		openOrder("s1", models.SideSell, "100.6", "5", "0"),
	}
	client.On("GetOpenOrders", mock.Anything, m.cfg.Exchange.TraderAddress, "TEAM1/AVAX").
		Return(orders, nil).Once()
	client.On("GetOrderBook", mock.Anything, "TEAM1/AVAX", 2, 50).
		Return(bookWith(
			[]models.BookLevel{{Price: dec("99"), Quantity: dec("10")}},
			[]models.BookLevel{{Price: dec("101"), Quantity: dec("8")}},
		), nil).Once()

	m.mu.Lock()
	err := m.synchronize(context.Background())
	m.mu.Unlock()
	require.NoError(t, err)

	state, open := m.Snapshot()
	require.True(t, state.BestBidPrice.Equal(dec("99")))
	require.True(t, state.BestAskPrice.Equal(dec("101")))
	require.True(t, state.BestBidAmount.Equal(dec("10")))
	require.True(t, state.BestAskAmount.Equal(dec("8")))
	require.True(t, state.MidPrice.Equal(dec("100")))
	require.NotZero(t, state.UpdatedNanos)
	require.Len(t, open, 2)

	require.Len(t, m.open.Orders(models.SideBuy), 1)
	require.Len(t, m.open.Orders(models.SideSell), 1)
	client.AssertExpectations(t)
}

func TestSynchronize_EmptyBookFallsBackToDefaultMid(t *testing.T) {
	client := &mockClient{}
	m := newTestMaker(client)

	client.On("GetOpenOrders", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OrderRecord{}, nil).Once()
	client.On("GetOrderBook", mock.Anything, "TEAM1/AVAX", 2, 50).
		Return(bookWith(nil, nil), nil).Once()

	m.mu.Lock()
	err := m.synchronize(context.Background())
	m.mu.Unlock()
	require.NoError(t, err)

	state, _ := m.Snapshot()
	require.True(t, state.MidPrice.Equal(dec("100.0")), "mid %s", state.MidPrice)
}

func TestSynchronize_OneSidedBookOffsetsBySpread(t *testing.T) {
	client := &mockClient{}
	m := newTestMaker(client)

	client.On("GetOpenOrders", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OrderRecord{}, nil).Once()
	client.On("GetOrderBook", mock.Anything, "TEAM1/AVAX", 2, 50).
		Return(bookWith([]models.BookLevel{{Price: dec("99"), Quantity: dec("1")}}, nil), nil).Once()

	m.mu.Lock()
	err := m.synchronize(context.Background())
	m.mu.Unlock()
	require.NoError(t, err)

	state, _ := m.Snapshot()
	require.True(t, state.MidPrice.Equal(dec("99.5")), "mid %s", state.MidPrice)
}

func TestSynchronize_ClosedOrdersExcludedFromOpenSet(t *testing.T) {
	client := &mockClient{}
	m := newTestMaker(client)

	filled := openOrder("f1", models.SideBuy, "99.4", "5", "0")
	filled.Status = models.OrderStatusFilled
	cancelled := openOrder("c1", models.SideSell, "100.6", "5", "0")
	cancelled.Status = models.OrderStatusCancelled

	client.On("GetOpenOrders", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OrderRecord{filled, cancelled}, nil).Once()
	client.On("GetOrderBook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(bookWith(nil, nil), nil).Once()

	m.mu.Lock()
	err := m.synchronize(context.Background())
	m.mu.Unlock()
	require.NoError(t, err)

	_, open := m.Snapshot()
	require.Empty(t, open)
}

func TestRunPass_SyncFailureSkipsReconciliation(t *testing.T) {
	client := &mockClient{}
	m := newTestMaker(client)

	client.On("GetOpenOrders", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("rpc timeout after retries")).Once()

	// A failed synchronization skips the cycle; no orders may be touched.
	m.runPass(context.Background(), "test")

	client.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "CancelOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunPass_SeedsBothSidesOnEmptyState(t *testing.T) {
	client := &mockClient{}
	m := newTestMaker(client)

	client.On("GetOpenOrders", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.OrderRecord{}, nil).Once()
	client.On("GetOrderBook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(bookWith(
			[]models.BookLevel{{Price: dec("99"), Quantity: dec("1")}},
			[]models.BookLevel{{Price: dec("101"), Quantity: dec("1")}},
		), nil).Once()

	var placed []*models.OrderRequest
	client.On("PlaceOrder", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			placed = append(placed, args.Get(1).(*models.OrderRequest))
		}).
		Return(&models.OrderRef{ID: "x"}, nil).Twice()

	m.runPass(context.Background(), "test")

	require.Len(t, placed, 2)
	require.Equal(t, models.SideBuy, placed[0].Side)
	require.True(t, placed[0].Price.Equal(dec("99.5")))
	require.Equal(t, models.SideSell, placed[1].Side)
	require.True(t, placed[1].Price.Equal(dec("100.5")))
	client.AssertExpectations(t)
}
