package maker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dexquote/marketmaker/pkg/models"
)

func TestComputeMid_BothSidesPopulated(t *testing.T) {
	mid := ComputeMid(dec("99"), dec("101"), dec("1.0"), dec("500"))
	assert.True(t, mid.Equal(dec("100")), "mid should be (bid+ask)/2, got %s", mid)
}

func TestComputeMid_OnlyBid(t *testing.T) {
	// Available side offset inward by half the target spread.
	mid := ComputeMid(dec("99"), dec("0"), dec("1.0"), dec("500"))
	assert.True(t, mid.Equal(dec("99.5")), "got %s", mid)
}

func TestComputeMid_OnlyAsk(t *testing.T) {
	mid := ComputeMid(dec("0"), dec("101"), dec("1.0"), dec("500"))
	assert.True(t, mid.Equal(dec("100.5")), "got %s", mid)
}

func TestComputeMid_EmptyBook(t *testing.T) {
	mid := ComputeMid(dec("0"), dec("0"), dec("1.0"), dec("500"))
	assert.True(t, mid.Equal(dec("500")), "got %s", mid)
}

func TestComputeQuotes(t *testing.T) {
	buy, sell := ComputeQuotes(dec("100"), dec("1.0"), dec("5.0"))

	assert.Equal(t, models.SideBuy, buy.Side)
	assert.Equal(t, models.SideSell, sell.Side)
	assert.True(t, buy.Price.Equal(dec("99.5")), "buy price %s", buy.Price)
	assert.True(t, sell.Price.Equal(dec("100.5")), "sell price %s", sell.Price)
	assert.True(t, buy.Amount.Equal(dec("5.0")))
	assert.True(t, sell.Amount.Equal(dec("5.0")))
}

func TestComputeQuotes_SpreadSymmetry(t *testing.T) {
	buy, sell := ComputeQuotes(dec("1234.56"), dec("2.5"), dec("1"))
	assert.True(t, sell.Price.Sub(buy.Price).Equal(dec("2.5")))
	assert.True(t, buy.Price.Add(sell.Price).Div(dec("2")).Equal(dec("1234.56")))
}
