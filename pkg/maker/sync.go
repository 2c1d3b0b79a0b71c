package maker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dexquote/marketmaker/pkg/models"
)

// synchronize rebuilds the cached MarketState and OpenOrderSet from a fresh
// exchange snapshot. The caches are replaced whole, never patched, so a
// missed event can only go stale until the next pass. Exchange state is not
// mutated here.
//
// Callers must hold m.mu.
func (m *MarketMaker) synchronize(ctx context.Context) error {
	orders, err := m.client.GetOpenOrders(ctx, m.cfg.Exchange.TraderAddress, m.cfg.Trading.Pair)
	if err != nil {
		return fmt.Errorf("failed to fetch open orders: %w", err)
	}

	book, err := m.client.GetOrderBook(ctx, m.cfg.Trading.Pair, m.cfg.Trading.PriceLevels, m.cfg.Trading.AggregatedOrders)
	if err != nil {
		return fmt.Errorf("failed to fetch order book: %w", err)
	}

	bestBid := book.BestBid()
	bestAsk := book.BestAsk()
	mid := ComputeMid(bestBid.Price, bestAsk.Price, m.cfg.Trading.TargetSpread, m.cfg.Trading.DefaultMidPrice)

	m.state = &models.MarketState{
		BestBidPrice:  bestBid.Price,
		BestBidAmount: bestBid.Quantity,
		BestAskPrice:  bestAsk.Price,
		BestAskAmount: bestAsk.Quantity,
		MidPrice:      mid,
		UpdatedNanos:  models.NowNanos(),
	}
	m.open = models.NewOpenOrderSet(orders)

	m.logger.WithFields(logrus.Fields{
		"best_bid":    bestBid.Price,
		"best_ask":    bestAsk.Price,
		"mid":         mid,
		"open_orders": m.open.Len(),
	}).Info("Market state updated")

	if bestBid.Price.IsZero() && bestAsk.Price.IsZero() {
		m.logger.WithField("default_mid", m.cfg.Trading.DefaultMidPrice).
			Info("No orders in the book, quoting around default mid price")
	} else if bestBid.Price.IsZero() || bestAsk.Price.IsZero() {
		m.logger.WithField("mid", mid).
			Info("Liquidity missing from one side of book, quoting around the available side")
	}

	return nil
}
