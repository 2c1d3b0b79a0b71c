package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dexquote/marketmaker/api"
	"github.com/dexquote/marketmaker/internal/config"
	"github.com/dexquote/marketmaker/pkg/dexalot"
	"github.com/dexquote/marketmaker/pkg/maker"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marketmaker",
		Short: "On-chain order book market maker",
		Long:  `Maintains a two-sided quote around the mid price of a single trade pair on an on-chain order book exchange`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Run the quoting loop",
		Run:   runStart,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Run a scripted quote/cancel/re-quote sequence and exit",
		Run:   runDemo,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger, exchange client, and maker.
func setup() (*config.Config, *maker.MarketMaker) {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	configureLogger(cfg)

	auth, err := dexalot.NewJWTAuthenticator(cfg.Exchange.TraderAddress, cfg.Exchange.PrivateKeyPEM)
	if err != nil {
		// Without a working signing key the process cannot safely submit
		// transactions; refuse to start.
		logger.WithError(err).Fatal("Failed to initialize trader signing key")
	}

	client := dexalot.NewRESTClient(dexalot.RESTClientOptions{
		BaseURL:    cfg.Exchange.BaseURL,
		Auth:       auth,
		Timeout:    cfg.Exchange.RequestTimeout,
		MaxRetries: cfg.Exchange.MaxRetries,
		RateLimit:  cfg.Exchange.RateLimit,
		Logger:     logger,
	})

	return cfg, maker.New(cfg, client, logger)
}

func configureLogger(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Logging.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
}

func runStart(cmd *cobra.Command, args []string) {
	cfg, mm := setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mm.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start market maker")
	}

	stream := dexalot.NewEventStream(dexalot.EventStreamOptions{
		URL:            cfg.Exchange.WebSocketURL,
		PairInfo:       mm.PairInfo(),
		ReconnectDelay: cfg.Exchange.ReconnectDelay,
		MaxReconnects:  cfg.Exchange.MaxReconnects,
		Logger:         logger,
	})
	stream.OnOrderEvent(mm.HandleOrderEvent)
	stream.OnTradeEvent(mm.HandleTradeEvent)

	if err := stream.Connect(ctx); err != nil {
		// The periodic refresh still reconciles without the stream, but a
		// dead feed at startup is almost always a config problem.
		logger.WithError(err).Fatal("Failed to connect event stream")
	}

	apiServer := api.NewServer(mm, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Market maker is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	mm.Stop()
	cancel()

	logger.Info("Market maker stopped")
}

func runDemo(cmd *cobra.Command, args []string) {
	_, mm := setup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mm.RunDemo(ctx); err != nil {
		logger.WithError(err).Fatal("Demo run failed")
	}

	logger.Info("Demo run completed")
}
