package maker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dexquote/marketmaker/pkg/dexalot"
	"github.com/dexquote/marketmaker/pkg/models"
)

// Action is the reconciler's per-side decision.
type Action int

const (
	// ActionNone leaves the side's resting order untouched.
	ActionNone Action = iota
	// ActionReplace cancels every open order on the side and places one
	// fresh order at the target quote.
	ActionReplace
)

func (a Action) String() string {
	if a == ActionReplace {
		return "REPLACE"
	}
	return "NONE"
}

// Decide compares one side's open orders against the target quote.
//
// Anything other than exactly one open order forces a replace: zero orders
// means the quote must be seeded, more than one signals a desync that is
// corrected by cancelling all and placing exactly one. A single order stands
// only when both its price and its remaining quantity sit within tolerance.
func Decide(orders []models.OrderRecord, target models.Quote, priceTol, amountTol decimal.Decimal) Action {
	if len(orders) != 1 {
		return ActionReplace
	}

	order := orders[0]
	if !withinTolerance(target.Price, order.Price, priceTol) {
		return ActionReplace
	}
	if !withinTolerance(target.Amount, order.Remaining(), amountTol) {
		return ActionReplace
	}
	return ActionNone
}

// withinTolerance checks |existing − target| ≤ existing × tolerance. The band
// is anchored on the existing order's own value, not the target, so small
// market drift does not force a cancel-and-replace. The boundary is inclusive.
func withinTolerance(target, existing, tolerance decimal.Decimal) bool {
	band := existing.Mul(tolerance)
	return existing.Sub(target).Abs().LessThanOrEqual(band)
}

// reconcileSide executes the decision for one side. Cancels are sequential
// and best effort: a failed cancel is logged and left for the next full
// synchronization to correct. Exactly one new order is placed afterwards.
func (m *MarketMaker) reconcileSide(ctx context.Context, side models.Side, target models.Quote, orders []models.OrderRecord) error {
	action := Decide(orders, target, m.cfg.Trading.OrderPriceTolerance, m.cfg.Trading.OrderAmountTolerance)

	log := m.logger.WithFields(logrus.Fields{
		"side":         side,
		"target_price": target.Price,
		"target_qty":   target.Amount,
		"open_orders":  len(orders),
	})

	if action == ActionNone {
		log.Debug("Resting order within tolerance")
		return nil
	}

	for _, order := range orders {
		log.WithField("order_id", order.ID).Info("Cancelling order")
		if err := m.client.CancelOrder(ctx, m.cfg.Trading.Pair, order.ID); err != nil {
			// Best effort: the next synchronization observes actual
			// exchange state and corrects any cancel that did not land.
			log.WithError(err).WithField("order_id", order.ID).Error("Cancel failed")
		}
	}

	req := &models.OrderRequest{
		Pair:     m.cfg.Trading.Pair,
		Side:     side,
		Type:     models.OrderTypeLimit,
		Price:    target.Price,
		Quantity: target.Amount,
	}

	ref, err := m.client.PlaceOrder(ctx, req)
	if err != nil {
		if errors.Is(err, dexalot.ErrSizeOutOfRange) {
			// Not transient: waits for the next market move or a config change.
			log.WithError(err).Warn("Order size outside pair trade limits, skipping placement")
			return nil
		}
		return fmt.Errorf("failed to place %s order: %w", side, err)
	}

	log.WithField("order_id", ref.ID).Info("Placed order")
	return nil
}

// reconcileOrders resolves the buy side fully before touching the sell side,
// pausing between them so transaction submissions against the same account
// never overlap.
func (m *MarketMaker) reconcileOrders(ctx context.Context, buy, sell models.Quote) error {
	if err := m.reconcileSide(ctx, models.SideBuy, buy, m.open.Orders(models.SideBuy)); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.Trading.SidePause):
	}

	return m.reconcileSide(ctx, models.SideSell, sell, m.open.Orders(models.SideSell))
}
