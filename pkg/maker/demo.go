package maker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// RunDemo walks one scripted quoting sequence against the live exchange:
// quote both sides, cancel the orders individually, re-quote around a nudged
// mid, then cancel everything. Useful for validating connectivity and
// credentials before running the full loop.
func (m *MarketMaker) RunDemo(ctx context.Context) error {
	info, err := m.client.GetPairInfo(ctx, m.cfg.Trading.Pair)
	if err != nil {
		return fmt.Errorf("failed to fetch pair metadata: %w", err)
	}
	m.pairInfo = info

	m.logger.WithField("pair", info.Pair).Info("Demo: seeding initial quotes")
	m.runPass(ctx, "demo initial quote")

	if err := sleepCtx(ctx, 10*time.Second); err != nil {
		return err
	}

	m.logger.Info("Demo: cancelling open orders individually")
	m.mu.Lock()
	if err := m.synchronize(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	for _, order := range m.open.All() {
		if err := m.client.CancelOrder(ctx, m.cfg.Trading.Pair, order.ID); err != nil {
			m.logger.WithError(err).WithField("order_id", order.ID).Error("Demo cancel failed")
		}
	}
	m.mu.Unlock()

	if err := sleepCtx(ctx, 20*time.Second); err != nil {
		return err
	}

	m.logger.Info("Demo: re-quoting around a nudged mid price")
	m.mu.Lock()
	if err := m.synchronize(ctx); err != nil {
		m.mu.Unlock()
		return err
	}
	mid := m.state.MidPrice.Add(randomNudge())
	buy, sell := ComputeQuotes(mid, m.cfg.Trading.TargetSpread, m.cfg.Trading.DefaultAmount)
	if err := m.reconcileOrders(ctx, buy, sell); err != nil {
		m.logger.WithError(err).Error("Demo re-quote failed")
	}
	m.mu.Unlock()

	if err := sleepCtx(ctx, 30*time.Second); err != nil {
		return err
	}

	m.logger.Info("Demo: cancelling all remaining orders")
	m.mu.Lock()
	err = m.synchronize(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.CancelAll(ctx)
}

// randomNudge returns a price offset in [-1.0, 1.0) with 0.1 granularity.
func randomNudge() decimal.Decimal {
	return decimal.NewFromInt(rand.Int63n(20) - 10).Div(decimal.NewFromInt(10))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
