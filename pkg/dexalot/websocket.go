package dexalot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dexquote/marketmaker/pkg/models"
)

const (
	channelOrderStatus = "orderStatus"
	channelExecuted    = "executed"
)

// OrderEventHandler consumes OrderStatusChanged notifications.
type OrderEventHandler func(ev models.OrderEvent)

// TradeEventHandler consumes Executed notifications.
type TradeEventHandler func(ev models.TradeEvent)

// EventStream subscribes to the exchange event feed and dispatches decoded
// events to registered handlers. Delivery is at least once; handlers must
// tolerate duplicates and reordering across event kinds.
type EventStream struct {
	url            string
	pairInfo       *models.PairInfo
	conn           *websocket.Conn
	mu             sync.Mutex
	connected      bool
	reconnectDelay time.Duration
	maxReconnects  int
	orderHandler   OrderEventHandler
	tradeHandler   TradeEventHandler
	logger         *logrus.Logger
}

type EventStreamOptions struct {
	URL            string
	PairInfo       *models.PairInfo
	ReconnectDelay time.Duration
	MaxReconnects  int
	Logger         *logrus.Logger
}

func NewEventStream(opts EventStreamOptions) *EventStream {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &EventStream{
		url:            opts.URL,
		pairInfo:       opts.PairInfo,
		reconnectDelay: opts.ReconnectDelay,
		maxReconnects:  opts.MaxReconnects,
		logger:         opts.Logger,
	}
}

func (es *EventStream) OnOrderEvent(handler OrderEventHandler) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.orderHandler = handler
}

func (es *EventStream) OnTradeEvent(handler TradeEventHandler) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.tradeHandler = handler
}

// Connect dials the feed, subscribes to both channels for the pair, and
// starts the read and keepalive loops. Reconnection is handled internally up
// to the configured attempt budget; sustained loss is mitigated by the
// engine's periodic refresh, not by the stream.
func (es *EventStream) Connect(ctx context.Context) error {
	if err := es.dial(ctx); err != nil {
		return err
	}

	go es.readLoop(ctx)
	go es.keepAlive(ctx)

	return nil
}

func (es *EventStream) dial(ctx context.Context) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, es.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event feed: %w", err)
	}

	es.conn = conn
	es.connected = true

	sub := subscribeMessage{
		Type:     "subscribe",
		Pair:     es.pairInfo.Pair,
		Channels: []string{channelOrderStatus, channelExecuted},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		es.connected = false
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

type subscribeMessage struct {
	Type     string   `json:"type"`
	Pair     string   `json:"pair"`
	Channels []string `json:"channels"`
}

type feedMessage struct {
	Type string          `json:"type"`
	Pair string          `json:"pair"`
	Data json.RawMessage `json:"data"`
}

// orderStatusPayload carries base-unit integer amounts, as emitted by the
// TradePairs contract.
type orderStatusPayload struct {
	ID             string `json:"id"`
	TraderAddress  string `json:"traderaddress"`
	Side           int    `json:"side"`
	Status         int    `json:"status"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	QuantityFilled string `json:"quantityfilled"`
}

type executedPayload struct {
	Maker    string `json:"maker"`
	Taker    string `json:"taker"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	FeeMaker string `json:"feemaker"`
	FeeTaker string `json:"feetaker"`
}

func (es *EventStream) readLoop(ctx context.Context) {
	reconnects := 0
	for {
		select {
		case <-ctx.Done():
			es.close()
			return
		default:
		}

		var msg feedMessage
		err := es.conn.ReadJSON(&msg)
		if err != nil {
			es.logger.WithError(err).Error("Failed to read event feed message")
			es.close()

			reconnects++
			if es.maxReconnects > 0 && reconnects > es.maxReconnects {
				es.logger.Error("Event feed reconnect budget exhausted; relying on periodic refresh")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(es.reconnectDelay):
			}
			if err := es.dial(ctx); err != nil {
				es.logger.WithError(err).Warn("Event feed reconnect failed")
			}
			continue
		}

		es.dispatch(msg)
	}
}

func (es *EventStream) dispatch(msg feedMessage) {
	switch msg.Type {
	case channelOrderStatus:
		ev, err := es.decodeOrderEvent(msg)
		if err != nil {
			es.logger.WithError(err).Warn("Dropping malformed order event")
			return
		}
		es.mu.Lock()
		handler := es.orderHandler
		es.mu.Unlock()
		if handler != nil {
			handler(ev)
		}
	case channelExecuted:
		ev, err := es.decodeTradeEvent(msg)
		if err != nil {
			es.logger.WithError(err).Warn("Dropping malformed trade event")
			return
		}
		es.mu.Lock()
		handler := es.tradeHandler
		es.mu.Unlock()
		if handler != nil {
			handler(ev)
		}
	}
}

func (es *EventStream) decodeOrderEvent(msg feedMessage) (models.OrderEvent, error) {
	var payload orderStatusPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return models.OrderEvent{}, err
	}

	side, err := models.ParseSide(payload.Side)
	if err != nil {
		return models.OrderEvent{}, err
	}
	status, err := models.ParseOrderStatus(payload.Status)
	if err != nil {
		return models.OrderEvent{}, err
	}
	price, err := fromBaseUnits(payload.Price, es.pairInfo.QuoteDecimals)
	if err != nil {
		return models.OrderEvent{}, err
	}
	qty, err := fromBaseUnits(payload.Quantity, es.pairInfo.BaseDecimals)
	if err != nil {
		return models.OrderEvent{}, err
	}
	filled, err := fromBaseUnits(payload.QuantityFilled, es.pairInfo.BaseDecimals)
	if err != nil {
		return models.OrderEvent{}, err
	}

	return models.OrderEvent{
		Pair:           msg.Pair,
		OrderID:        payload.ID,
		Trader:         payload.TraderAddress,
		Side:           side,
		Status:         status,
		Price:          price,
		Quantity:       qty,
		QuantityFilled: filled,
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (es *EventStream) decodeTradeEvent(msg feedMessage) (models.TradeEvent, error) {
	var payload executedPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return models.TradeEvent{}, err
	}

	price, err := fromBaseUnits(payload.Price, es.pairInfo.QuoteDecimals)
	if err != nil {
		return models.TradeEvent{}, err
	}
	amount, err := fromBaseUnits(payload.Quantity, es.pairInfo.BaseDecimals)
	if err != nil {
		return models.TradeEvent{}, err
	}
	feeMaker, err := fromBaseUnits(payload.FeeMaker, es.pairInfo.QuoteDecimals)
	if err != nil {
		return models.TradeEvent{}, err
	}
	feeTaker, err := fromBaseUnits(payload.FeeTaker, es.pairInfo.QuoteDecimals)
	if err != nil {
		return models.TradeEvent{}, err
	}

	return models.TradeEvent{
		Pair:      msg.Pair,
		Maker:     payload.Maker,
		Taker:     payload.Taker,
		Price:     price,
		Amount:    amount,
		FeeMaker:  feeMaker,
		FeeTaker:  feeTaker,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (es *EventStream) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			es.mu.Lock()
			if es.connected {
				if err := es.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					es.logger.WithError(err).Error("Failed to send ping")
				}
			}
			es.mu.Unlock()
		}
	}
}

func (es *EventStream) close() {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.connected = false
	if es.conn != nil {
		es.conn.Close()
	}
}
