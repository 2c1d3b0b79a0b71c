package maker

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dexquote/marketmaker/pkg/models"
)

// HandleOrderEvent classifies one order-lifecycle notification and requests a
// reconciliation pass when it can have invalidated the resting quotes. The
// pass itself runs on the worker after the settle delay, so the exchange's
// own state has caught up with the event by the time we resynchronize.
func (m *MarketMaker) HandleOrderEvent(ev models.OrderEvent) {
	if ev.Pair != m.cfg.Trading.Pair {
		return
	}

	if m.isOwnOrder(ev.Trader) {
		m.handleOwnOrderEvent(ev)
		return
	}
	m.handleThirdPartyOrderEvent(ev)
}

func (m *MarketMaker) isOwnOrder(trader string) bool {
	return strings.EqualFold(trader, m.cfg.Exchange.TraderAddress)
}

func (m *MarketMaker) handleOwnOrderEvent(ev models.OrderEvent) {
	log := m.logger.WithFields(logrus.Fields{
		"order_id": ev.OrderID,
		"side":     ev.Side,
		"status":   ev.Status,
	})

	switch ev.Status {
	case models.OrderStatusFilled:
		log.WithField("filled", ev.QuantityFilled).Info("Own order filled")
		m.requestReconcile("own order filled", true)

	case models.OrderStatusRejected, models.OrderStatusExpired, models.OrderStatusKilled:
		log.Warn("Own order reached unexpected terminal state, forcing full resync")
		m.requestReconcile("own order terminal state", true)

	case models.OrderStatusPartial:
		remaining := ev.Quantity.Sub(ev.QuantityFilled)
		log.WithFields(logrus.Fields{
			"filled":    ev.QuantityFilled,
			"total":     ev.Quantity,
			"remaining": remaining,
		}).Info("Own order partially filled")

		// Reconcile only when the remainder drifted out of the amount
		// tolerance band; micro-fills must not cause quote flapping.
		if !withinTolerance(m.cfg.Trading.DefaultAmount, remaining, m.cfg.Trading.OrderAmountTolerance) {
			m.requestReconcile("partial fill out of tolerance", true)
		}
	}
}

func (m *MarketMaker) handleThirdPartyOrderEvent(ev models.OrderEvent) {
	m.mu.Lock()
	bestBid := m.state.BestBidPrice
	bestAsk := m.state.BestAskPrice
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"trader": ev.Trader,
		"side":   ev.Side,
		"status": ev.Status,
		"price":  ev.Price,
		"amount": ev.Quantity,
	})

	switch ev.Status {
	case models.OrderStatusNew:
		// Competitors compressing the book move the mid; chase only real
		// improvements of the tracked best levels.
		if ev.Side == models.SideBuy && ev.Price.GreaterThan(bestBid) {
			log.WithField("best_bid", bestBid).Info("Best bid improved by third-party order")
			m.requestReconcile("best bid improved", true)
		} else if ev.Side == models.SideSell && ev.Price.LessThan(bestAsk) {
			log.WithField("best_ask", bestAsk).Info("Best ask improved by third-party order")
			m.requestReconcile("best ask improved", true)
		}

	case models.OrderStatusCancelled, models.OrderStatusFilled:
		// Liquidity may have thinned at the top of the book.
		if ev.Price.Equal(bestBid) || ev.Price.Equal(bestAsk) {
			log.Info("Order removed at a tracked best level")
			m.requestReconcile("best level removed", true)
		}
	}
}

// HandleTradeEvent logs execution details for observability. Executed events
// are emitted alongside OrderStatusChanged and never trigger state changes;
// maker/taker identities could later feed spread or skew adjustments.
func (m *MarketMaker) HandleTradeEvent(ev models.TradeEvent) {
	if ev.Pair != m.cfg.Trading.Pair {
		return
	}

	m.logger.WithFields(logrus.Fields{
		"pair":      ev.Pair,
		"price":     ev.Price,
		"amount":    ev.Amount,
		"maker":     ev.Maker,
		"taker":     ev.Taker,
		"fee_maker": ev.FeeMaker,
		"fee_taker": ev.FeeTaker,
	}).Info("Trade executed")
}
