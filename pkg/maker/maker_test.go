package maker

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/dexquote/marketmaker/internal/config"
	"github.com/dexquote/marketmaker/pkg/models"
)

// mockClient is a testify mock of the exchange client surface.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetPairInfo(ctx context.Context, pair string) (*models.PairInfo, error) {
	args := m.Called(ctx, pair)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PairInfo), args.Error(1)
}

func (m *mockClient) GetOrderBook(ctx context.Context, pair string, levels, aggregatedOrders int) (*models.OrderBook, error) {
	args := m.Called(ctx, pair, levels, aggregatedOrders)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderBook), args.Error(1)
}

func (m *mockClient) GetOpenOrders(ctx context.Context, trader, pair string) ([]models.OrderRecord, error) {
	args := m.Called(ctx, trader, pair)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderRecord), args.Error(1)
}

func (m *mockClient) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderRef, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderRef), args.Error(1)
}

func (m *mockClient) CancelOrder(ctx context.Context, pair, orderID string) error {
	args := m.Called(ctx, pair, orderID)
	return args.Error(0)
}

func (m *mockClient) CancelAllOrders(ctx context.Context, pair string, orderIDs []string) error {
	args := m.Called(ctx, pair, orderIDs)
	return args.Error(0)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Trading.Pair = "TEAM1/AVAX"
	cfg.Trading.TargetSpread = dec("1.0")
	cfg.Trading.OrderPriceTolerance = dec("0.005")
	cfg.Trading.OrderAmountTolerance = dec("0.2")
	cfg.Trading.DefaultAmount = dec("5.0")
	cfg.Trading.DefaultMidPrice = dec("100.0")
	cfg.Trading.PriceLevels = 2
	cfg.Trading.AggregatedOrders = 50
	cfg.Trading.RefreshInterval = time.Second
	cfg.Trading.SettleDelay = time.Millisecond
	cfg.Trading.SidePause = time.Millisecond
	cfg.Exchange.TraderAddress = "0xABCDEF0123456789"
	return cfg
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestMaker(client *mockClient) *MarketMaker {
	return New(testConfig(), client, testLogger())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openOrder(id string, side models.Side, price, qty, filled string) models.OrderRecord {
	status := models.OrderStatusNew
	if filled != "0" {
		status = models.OrderStatusPartial
	}
	return models.OrderRecord{
		ID:             id,
		Pair:           "TEAM1/AVAX",
		Side:           side,
		Type:           models.OrderTypeLimit,
		Price:          dec(price),
		Quantity:       dec(qty),
		QuantityFilled: dec(filled),
		Status:         status,
	}
}
