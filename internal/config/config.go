package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dexquote/marketmaker/internal/secrets"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ExchangeConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	WebSocketURL  string `mapstructure:"ws_url"`
	TraderAddress string `mapstructure:"trader_address"`

	// PrivateKeyPEM is the trader's EC signing key. It may be supplied
	// inline, via PrivateKeyFile, or through GCP Secret Manager.
	PrivateKeyPEM  string `mapstructure:"private_key_pem"`
	PrivateKeyFile string `mapstructure:"private_key_file"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimit      float64       `mapstructure:"rate_limit"`

	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

type TradingConfig struct {
	Pair                 string          `mapstructure:"pair"`
	TargetSpread         decimal.Decimal `mapstructure:"target_spread"`
	OrderPriceTolerance  decimal.Decimal `mapstructure:"order_price_tolerance"`
	OrderAmountTolerance decimal.Decimal `mapstructure:"order_amount_tolerance"`
	DefaultAmount        decimal.Decimal `mapstructure:"default_amount"`
	DefaultMidPrice      decimal.Decimal `mapstructure:"default_mid_price"`
	PriceLevels          int             `mapstructure:"price_levels"`
	AggregatedOrders     int             `mapstructure:"aggregated_orders"`
	RefreshInterval      time.Duration   `mapstructure:"refresh_interval"`
	SettleDelay          time.Duration   `mapstructure:"settle_delay"`
	SidePause            time.Duration   `mapstructure:"side_pause"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	UseSecrets      bool   `mapstructure:"use_secrets"`
	CredentialsFile string `mapstructure:"credentials_file"`
	KeySecretName   string `mapstructure:"key_secret_name"`
}

func Load(configPath string) (*Config, error) {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/marketmaker")
	}

	v.SetEnvPrefix("MM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment.
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.PrivateKeyPEMUnset() && config.Exchange.PrivateKeyFile != "" {
		pem, err := os.ReadFile(config.Exchange.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("error reading private key file: %w", err)
		}
		config.Exchange.PrivateKeyPEM = string(pem)
	}

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		if err := loadSecretsFromGCP(context.Background(), &config); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// decimalDecodeHook lets viper populate decimal.Decimal fields from the
// string, float, or integer forms a YAML file or env var may carry.
func decimalDecodeHook() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch val := data.(type) {
		case string:
			return decimal.NewFromString(val)
		case float64:
			return decimal.NewFromFloat(val), nil
		case int:
			return decimal.NewFromInt(int64(val)), nil
		case int64:
			return decimal.NewFromInt(val), nil
		default:
			return data, nil
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("exchange.base_url", "https://api.dexalot-dev.com/api/")
	v.SetDefault("exchange.ws_url", "wss://api.dexalot-dev.com/ws")
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.max_retries", 3)
	v.SetDefault("exchange.rate_limit", 5.0)
	v.SetDefault("exchange.reconnect_delay", "5s")
	v.SetDefault("exchange.max_reconnects", 10)

	v.SetDefault("trading.pair", "")
	v.SetDefault("trading.target_spread", "1.0")
	v.SetDefault("trading.order_price_tolerance", "0.005")
	v.SetDefault("trading.order_amount_tolerance", "0.2")
	v.SetDefault("trading.default_amount", "5.0")
	v.SetDefault("trading.default_mid_price", "100.0")
	v.SetDefault("trading.price_levels", 2)
	v.SetDefault("trading.aggregated_orders", 50)
	v.SetDefault("trading.refresh_interval", "30s")
	v.SetDefault("trading.settle_delay", "5s")
	v.SetDefault("trading.side_pause", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.key_secret_name", "marketmaker-trader-key")
}

func overrideFromEnv(config *Config) {
	if addr := os.Getenv("MM_TRADER_ADDRESS"); addr != "" {
		config.Exchange.TraderAddress = addr
	}
	if pem := os.Getenv("MM_TRADER_PRIVATE_KEY"); pem != "" {
		config.Exchange.PrivateKeyPEM = pem
	}
	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config) error {
	logger := logrus.New()
	manager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer manager.Close()

	if config.PrivateKeyPEMUnset() {
		config.Exchange.PrivateKeyPEM = manager.GetSecretWithDefault(ctx, config.GCP.KeySecretName, "")
	}
	return nil
}

// PrivateKeyPEMUnset reports whether a signing key still has to be resolved.
func (c *Config) PrivateKeyPEMUnset() bool {
	return c.Exchange.PrivateKeyPEM == ""
}

// Validate enforces the startup invariants. A failure here is fatal: the
// process must not start quoting on a broken configuration.
func (c *Config) Validate() error {
	if c.Trading.Pair == "" {
		return fmt.Errorf("trading.pair is required")
	}
	if !c.Trading.TargetSpread.IsPositive() {
		return fmt.Errorf("trading.target_spread must be positive, got %s", c.Trading.TargetSpread)
	}
	if err := validateTolerance("trading.order_price_tolerance", c.Trading.OrderPriceTolerance); err != nil {
		return err
	}
	if err := validateTolerance("trading.order_amount_tolerance", c.Trading.OrderAmountTolerance); err != nil {
		return err
	}
	if !c.Trading.DefaultAmount.IsPositive() {
		return fmt.Errorf("trading.default_amount must be positive, got %s", c.Trading.DefaultAmount)
	}
	if !c.Trading.DefaultMidPrice.IsPositive() {
		return fmt.Errorf("trading.default_mid_price must be positive, got %s", c.Trading.DefaultMidPrice)
	}
	if c.Trading.PriceLevels <= 0 {
		return fmt.Errorf("trading.price_levels must be positive, got %d", c.Trading.PriceLevels)
	}
	if c.Trading.AggregatedOrders <= 0 {
		return fmt.Errorf("trading.aggregated_orders must be positive, got %d", c.Trading.AggregatedOrders)
	}
	if c.Trading.RefreshInterval <= 0 {
		return fmt.Errorf("trading.refresh_interval must be positive, got %s", c.Trading.RefreshInterval)
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.MaxRetries < 0 {
		return fmt.Errorf("exchange.max_retries must not be negative, got %d", c.Exchange.MaxRetries)
	}
	return nil
}

func validateTolerance(name string, tol decimal.Decimal) error {
	if tol.IsNegative() || tol.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1), got %s", name, tol)
	}
	return nil
}
