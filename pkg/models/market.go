package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PairInfo is the published metadata for a trade pair.
type PairInfo struct {
	Pair                 string
	BaseSymbol           string
	QuoteSymbol          string
	BaseAddress          string
	QuoteAddress         string
	BaseDecimals         int
	QuoteDecimals        int
	BaseDisplayDecimals  int
	QuoteDisplayDecimals int
	MinTradeAmount       decimal.Decimal
	MaxTradeAmount       decimal.Decimal
}

// BookLevel is one aggregated price level of the order book.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook holds the aggregated top-N levels for both sides, prices and
// quantities already converted to display units.
type OrderBook struct {
	Pair string
	Bids []BookLevel
	Asks []BookLevel
}

// BestBid returns the top bid level, or a zero level on an empty side.
func (b *OrderBook) BestBid() BookLevel {
	if len(b.Bids) == 0 {
		return BookLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask level, or a zero level on an empty side.
func (b *OrderBook) BestAsk() BookLevel {
	if len(b.Asks) == 0 {
		return BookLevel{}
	}
	return b.Asks[0]
}

// MarketState is the engine's canonical snapshot of the market. It is
// rebuilt whole on every synchronization, never patched incrementally.
type MarketState struct {
	BestBidPrice  decimal.Decimal
	BestBidAmount decimal.Decimal
	BestAskPrice  decimal.Decimal
	BestAskAmount decimal.Decimal
	MidPrice      decimal.Decimal
	UpdatedNanos  int64
}

// Quote is a target price/amount for one side. It has no identity and is
// recomputed from MarketState and configuration on every pass.
type Quote struct {
	Side   Side
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OpenOrderSet is the working view of the trader's resting orders,
// partitioned by side. Steady state holds at most one order per side.
type OpenOrderSet struct {
	buys  []OrderRecord
	sells []OrderRecord
}

// NewOpenOrderSet partitions the given records, keeping only open ones.
func NewOpenOrderSet(orders []OrderRecord) *OpenOrderSet {
	s := &OpenOrderSet{}
	for _, o := range orders {
		if !o.IsOpen() {
			continue
		}
		if o.Side == SideBuy {
			s.buys = append(s.buys, o)
		} else {
			s.sells = append(s.sells, o)
		}
	}
	return s
}

// Orders returns the open orders for one side.
func (s *OpenOrderSet) Orders(side Side) []OrderRecord {
	if side == SideBuy {
		return s.buys
	}
	return s.sells
}

// All returns every open order, buys first.
func (s *OpenOrderSet) All() []OrderRecord {
	out := make([]OrderRecord, 0, len(s.buys)+len(s.sells))
	out = append(out, s.buys...)
	out = append(out, s.sells...)
	return out
}

// Len returns the total number of open orders.
func (s *OpenOrderSet) Len() int {
	return len(s.buys) + len(s.sells)
}

// NowNanos returns the current wall clock in nanoseconds, the resolution
// used for MarketState snapshot timestamps.
func NowNanos() int64 {
	return time.Now().UTC().UnixNano()
}
