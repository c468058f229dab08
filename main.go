package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xonx4l/orderbook/config"
	"github.com/xonx4l/orderbook/domain"
	"github.com/xonx4l/orderbook/infrastructure/logger"
	promclient "github.com/xonx4l/orderbook/infrastructure/prometheus"
	"github.com/xonx4l/orderbook/provider/binance"
	"github.com/xonx4l/orderbook/rpc"
	"github.com/xonx4l/orderbook/usecase"
)

const providerName = "binance"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", false)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("order book replica stopped")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	symbol, err := cfg.MarketSymbol()
	if err != nil {
		return err
	}

	streamClient := binance.NewBinanceStreamClient(cfg.StreamClientConfig(), log)
	if err := streamClient.Connect(); err != nil {
		return err
	}
	defer streamClient.Close()

	streamAPI := binance.NewBinanceStreamAPI(streamClient, cfg.Binance.UpdateSpeed, log)
	syncAPI := binance.NewBinanceSyncAPI(cfg.Binance.RESTEndpoint, &http.Client{}, log)

	maintainer := domain.NewOrderBookMaintainer(
		symbol,
		streamAPI,
		syncAPI,
		&binance.BinanceDepthUpdateValidator{},
		cfg.MaintainerConfig(),
		log,
	)

	metrics := promclient.NewOrderBookMetrics(symbol)
	server := rpc.NewServer(
		usecase.NewOrderBookSnapshotUseCase(maintainer, syncAPI, usecase.OrderBookSnapshotConfig{
			FallbackDepth: cfg.Server.MaxDepth,
			FallbackTTL:   cfg.Sync.RetryInterval,
		}, log),
		maintainer,
		&rpc.ValidationServiceConfig{
			AvailableProviders: []string{providerName},
			MaxDepth:           cfg.Server.MaxDepth,
		},
		log,
	)
	maintainer.SetObserver(domain.Observers{metrics, server.HealthObserver()})

	log.Info().
		Str("symbol", symbol.String()).
		Str("stream", cfg.Binance.StreamEndpoint).
		Str("rest", cfg.Binance.RESTEndpoint).
		Bool("debug", cfg.DebugMode).
		Msg("starting order book replica")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return maintainer.Run(gctx)
	})
	g.Go(func() error {
		return promclient.StartPromClientServer(gctx, cfg.Server.MetricsAddr, metrics.Handler(), log)
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Server.GRPCAddr)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
