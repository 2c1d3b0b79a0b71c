package maker

import (
	"github.com/shopspring/decimal"

	"github.com/dexquote/marketmaker/pkg/models"
)

var two = decimal.NewFromInt(2)

// ComputeQuotes derives the target two-sided quote from the mid price.
// Buy rests half a spread below mid, sell half a spread above; both sides
// carry the configured default amount. Pure and deterministic.
func ComputeQuotes(mid, spread, amount decimal.Decimal) (buy, sell models.Quote) {
	half := spread.Div(two)
	buy = models.Quote{
		Side:   models.SideBuy,
		Price:  mid.Sub(half),
		Amount: amount,
	}
	sell = models.Quote{
		Side:   models.SideSell,
		Price:  mid.Add(half),
		Amount: amount,
	}
	return buy, sell
}

// ComputeMid derives the canonical mid price from the best levels. With both
// sides populated it is the arithmetic mid. With exactly one side populated
// the available side is offset inward by half the target spread. With an
// empty book the configured default applies.
func ComputeMid(bestBid, bestAsk, spread, defaultMid decimal.Decimal) decimal.Decimal {
	half := spread.Div(two)
	switch {
	case bestBid.IsZero() && bestAsk.IsZero():
		return defaultMid
	case bestAsk.IsZero():
		return bestBid.Add(half)
	case bestBid.IsZero():
		return bestAsk.Sub(half)
	default:
		return bestBid.Add(bestAsk).Div(two)
	}
}
