package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is one OrderStatusChanged notification from the exchange.
// Delivery is at least once with no ordering guarantee across event kinds.
type OrderEvent struct {
	Pair           string
	OrderID        string
	Trader         string
	Side           Side
	Status         OrderStatus
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	QuantityFilled decimal.Decimal
	Timestamp      time.Time
}

// TradeEvent is one Executed notification, consumed for observability only.
type TradeEvent struct {
	Pair      string
	Maker     string
	Taker     string
	Price     decimal.Decimal
	Amount    decimal.Decimal
	FeeMaker  decimal.Decimal
	FeeTaker  decimal.Decimal
	Timestamp time.Time
}
