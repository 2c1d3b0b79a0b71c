package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order side as encoded by the TradePairs contract.
type Side int

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return fmt.Sprintf("SIDE(%d)", int(s))
	}
}

// ParseSide converts the wire code carried by OrderStatusChanged events.
func ParseSide(code int) (Side, error) {
	switch code {
	case 0:
		return SideBuy, nil
	case 1:
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown order side code %d", code)
	}
}

// OrderType mirrors the exchange contract's order type codes.
type OrderType int

const (
	OrderTypeMarket    OrderType = 0
	OrderTypeLimit     OrderType = 1
	OrderTypeStop      OrderType = 2
	OrderTypeStopLimit OrderType = 3
	OrderTypeLimitFOK  OrderType = 4
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeStopLimit:
		return "STOPLIMIT"
	case OrderTypeLimitFOK:
		return "LIMITFOK"
	default:
		return fmt.Sprintf("TYPE(%d)", int(t))
	}
}

// OrderStatus mirrors the exchange contract's status codes.
type OrderStatus int

const (
	OrderStatusNew       OrderStatus = 0
	OrderStatusRejected  OrderStatus = 1
	OrderStatusPartial   OrderStatus = 2
	OrderStatusFilled    OrderStatus = 3
	OrderStatusCancelled OrderStatus = 4
	OrderStatusExpired   OrderStatus = 5
	OrderStatusKilled    OrderStatus = 6
)

func (st OrderStatus) String() string {
	switch st {
	case OrderStatusNew:
		return "NEW"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusPartial:
		return "PARTIAL"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusExpired:
		return "EXPIRED"
	case OrderStatusKilled:
		return "KILLED"
	default:
		return fmt.Sprintf("STATUS(%d)", int(st))
	}
}

// ParseOrderStatus converts the wire code carried by OrderStatusChanged events.
func ParseOrderStatus(code int) (OrderStatus, error) {
	if code < int(OrderStatusNew) || code > int(OrderStatusKilled) {
		return 0, fmt.Errorf("unknown order status code %d", code)
	}
	return OrderStatus(code), nil
}

// IsTerminal reports whether the status ends the order's lifecycle.
func (st OrderStatus) IsTerminal() bool {
	switch st {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired,
		OrderStatusRejected, OrderStatusKilled:
		return true
	default:
		return false
	}
}

// OrderRecord is the engine's read-only view of an exchange order. The
// exchange owns the record; the engine only observes fresh copies through
// synchronization or events and never mutates one in place.
type OrderRecord struct {
	ID             string
	Pair           string
	Trader         string
	Side           Side
	Type           OrderType
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	QuantityFilled decimal.Decimal
	Status         OrderStatus
	UpdatedAt      time.Time
}

// Remaining returns the unfilled quantity.
func (o *OrderRecord) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.QuantityFilled)
}

// IsOpen reports whether the order is still resting on the book.
func (o *OrderRecord) IsOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartial
}

// OrderRequest is the payload for placing a new order.
type OrderRequest struct {
	Pair     string
	Side     Side
	Type     OrderType
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderRef identifies a placed order as acknowledged by the exchange.
type OrderRef struct {
	ID     string
	TxHash string
}
