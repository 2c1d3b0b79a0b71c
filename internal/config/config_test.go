package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
trading:
  pair: "TEAM1/AVAX"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "TEAM1/AVAX", cfg.Trading.Pair)
	assert.True(t, cfg.Trading.TargetSpread.Equal(decimal.RequireFromString("1.0")))
	assert.True(t, cfg.Trading.OrderPriceTolerance.Equal(decimal.RequireFromString("0.005")))
	assert.True(t, cfg.Trading.OrderAmountTolerance.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, cfg.Trading.DefaultAmount.Equal(decimal.RequireFromString("5.0")))
	assert.Equal(t, 2, cfg.Trading.PriceLevels)
	assert.Equal(t, 50, cfg.Trading.AggregatedOrders)
	assert.Equal(t, 30*time.Second, cfg.Trading.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.Trading.SettleDelay)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_DecimalFieldsFromStringsAndNumbers(t *testing.T) {
	path := writeConfig(t, `
trading:
  pair: "TEAM1/AVAX"
  target_spread: "2.5"
  default_amount: 10
  default_mid_price: 419.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Trading.TargetSpread.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, cfg.Trading.DefaultAmount.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Trading.DefaultMidPrice.Equal(decimal.RequireFromString("419.0")))
}

func TestLoad_MissingPairFails(t *testing.T) {
	path := writeConfig(t, `
trading:
  target_spread: "1.0"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trading.pair")
}

func TestLoad_NegativeSpreadFails(t *testing.T) {
	path := writeConfig(t, `
trading:
  pair: "TEAM1/AVAX"
  target_spread: "-1.0"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_spread")
}

func TestLoad_ToleranceOutOfRangeFails(t *testing.T) {
	for _, tol := range []string{"-0.1", "1.0", "1.5"} {
		path := writeConfig(t, `
trading:
  pair: "TEAM1/AVAX"
  order_price_tolerance: "`+tol+`"
`)

		_, err := Load(path)
		require.Error(t, err, "tolerance %s must be rejected", tol)
		assert.Contains(t, err.Error(), "order_price_tolerance")
	}
}

func TestLoad_ZeroRefreshIntervalFails(t *testing.T) {
	path := writeConfig(t, `
trading:
  pair: "TEAM1/AVAX"
  refresh_interval: 0s
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh_interval")
}

func TestLoad_EnvOverridesTraderCredentials(t *testing.T) {
	t.Setenv("MM_TRADER_ADDRESS", "0xFEED")

	path := writeConfig(t, `
trading:
  pair: "TEAM1/AVAX"
exchange:
  trader_address: "0xDEAD"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0xFEED", cfg.Exchange.TraderAddress)
}

func TestValidate_AmountMustBePositive(t *testing.T) {
	path := writeConfig(t, `
trading:
  pair: "TEAM1/AVAX"
  default_amount: "0"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_amount")
}
