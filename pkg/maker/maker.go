package maker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dexquote/marketmaker/internal/config"
	"github.com/dexquote/marketmaker/pkg/dexalot"
	"github.com/dexquote/marketmaker/pkg/models"
)

// MarketMaker keeps a single two-sided quote resting around the mid price of
// one trade pair. It reacts to exchange events and runs a periodic refresh as
// a backstop against missed or out-of-order delivery.
//
// One reconciliation pass may be in flight at a time; m.mu serializes passes
// and guards the cached market/order state. Triggers arriving during a pass
// coalesce into at most one pending extra pass.
type MarketMaker struct {
	cfg      *config.Config
	client   dexalot.Client
	pairInfo *models.PairInfo
	logger   *logrus.Logger

	mu    sync.Mutex
	state *models.MarketState
	open  *models.OpenOrderSet

	trigger chan trigger
	stopCh  chan struct{}
	stopped sync.Once
}

// trigger requests one reconciliation pass. Settle asks the worker to pause
// before resynchronizing so exchange state catches up with the event that
// forced the pass.
type trigger struct {
	reason string
	settle bool
}

func New(cfg *config.Config, client dexalot.Client, logger *logrus.Logger) *MarketMaker {
	return &MarketMaker{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		state:   &models.MarketState{},
		open:    models.NewOpenOrderSet(nil),
		trigger: make(chan trigger, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start fetches pair metadata, runs the initial synchronize + reconcile, and
// launches the reconcile worker and the periodic refresh scheduler. Event
// listeners are wired by the caller through HandleOrderEvent and
// HandleTradeEvent.
func (m *MarketMaker) Start(ctx context.Context) error {
	info, err := m.client.GetPairInfo(ctx, m.cfg.Trading.Pair)
	if err != nil {
		return fmt.Errorf("failed to fetch pair metadata: %w", err)
	}
	m.pairInfo = info

	m.logger.WithFields(logrus.Fields{
		"pair":             info.Pair,
		"base":             info.BaseSymbol,
		"quote":            info.QuoteSymbol,
		"base_decimals":    info.BaseDecimals,
		"quote_decimals":   info.QuoteDecimals,
		"min_trade":        info.MinTradeAmount,
		"max_trade":        info.MaxTradeAmount,
		"target_spread":    m.cfg.Trading.TargetSpread,
		"price_tolerance":  m.cfg.Trading.OrderPriceTolerance,
		"amount_tolerance": m.cfg.Trading.OrderAmountTolerance,
	}).Info("Market initialized")

	// Seed the quotes before any event can arrive.
	m.runPass(ctx, "startup")

	go m.runWorker(ctx)
	go m.runRefreshScheduler(ctx)

	return nil
}

// Stop halts the worker and the refresh scheduler.
func (m *MarketMaker) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// PairInfo returns the pair metadata fetched at startup.
func (m *MarketMaker) PairInfo() *models.PairInfo {
	return m.pairInfo
}

// Snapshot returns copies of the cached market state and open orders for
// observability consumers.
func (m *MarketMaker) Snapshot() (models.MarketState, []models.OrderRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state, m.open.All()
}

// TargetQuotes returns the quotes the engine is currently steering toward.
func (m *MarketMaker) TargetQuotes() (models.Quote, models.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ComputeQuotes(m.state.MidPrice, m.cfg.Trading.TargetSpread, m.cfg.Trading.DefaultAmount)
}

// requestReconcile asks the worker for a pass. The trigger channel holds at
// most one pending request; a request arriving while one is queued is
// dropped, bounding backlog during event bursts.
func (m *MarketMaker) requestReconcile(reason string, settle bool) {
	select {
	case m.trigger <- trigger{reason: reason, settle: settle}:
	default:
		m.logger.WithField("reason", reason).Debug("Reconcile already pending, coalescing")
	}
}

// runWorker is the single reconciliation coordinator. All passes execute
// here, one at a time.
func (m *MarketMaker) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case t := <-m.trigger:
			if t.settle {
				select {
				case <-ctx.Done():
					return
				case <-m.stopCh:
					return
				case <-time.After(m.cfg.Trading.SettleDelay):
				}
			}
			m.runPass(ctx, t.reason)
		}
	}
}

// runRefreshScheduler forces a full pass at the configured interval
// regardless of event activity. A failed cycle is logged by runPass and the
// schedule continues undisturbed.
func (m *MarketMaker) runRefreshScheduler(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Trading.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.requestReconcile("periodic refresh", false)
		}
	}
}

// runPass executes one synchronize → compute → reconcile cycle for both
// sides. Faults are contained here: a failed synchronization skips the cycle,
// a failed reconcile is logged, and neither terminates the quoting loop.
func (m *MarketMaker) runPass(ctx context.Context, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logger.WithField("reason", reason)

	if err := m.synchronize(ctx); err != nil {
		log.WithError(err).Error("Synchronization failed, skipping reconciliation cycle")
		return
	}

	buy, sell := ComputeQuotes(m.state.MidPrice, m.cfg.Trading.TargetSpread, m.cfg.Trading.DefaultAmount)
	if err := m.reconcileOrders(ctx, buy, sell); err != nil {
		log.WithError(err).Error("Reconciliation failed, awaiting next pass")
	}
}

// CancelAll cancels every currently known open order in one call.
func (m *MarketMaker) CancelAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, m.open.Len())
	for _, order := range m.open.All() {
		ids = append(ids, order.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	return m.client.CancelAllOrders(ctx, m.cfg.Trading.Pair, ids)
}
