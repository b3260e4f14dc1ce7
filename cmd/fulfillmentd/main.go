package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"fulfillment/internal/clock"
	"fulfillment/internal/inventory"
	"fulfillment/internal/order"
	"fulfillment/internal/pkg/cache"
	"fulfillment/internal/pkg/config"
	"fulfillment/internal/pkg/logging"
	"fulfillment/internal/pkg/mq"
	"fulfillment/internal/pkg/tracing"
	"fulfillment/internal/pool"
	"fulfillment/internal/storage/mysql"
	"fulfillment/internal/sweeper"
	"fulfillment/internal/transport/httpapi"
)

const serviceName = "fulfillmentd"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	log := logging.New(serviceName)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config file not loaded, using defaults")
		cfg = config.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer provider shutdown failed")
		}
	}()

	store, err := mysql.Open(cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	defer redisClient.Close()

	auditWriter := mq.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	defer auditWriter.Close()
	notificationWriter := mq.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
	defer notificationWriter.Close()

	registry := prometheus.NewRegistry()
	clk := clock.NewSystem()
	settings := config.NewSettings(store, log)

	engine := inventory.NewEngine(
		store,
		settings,
		cache.NewInvalidator(redisClient, log),
		mq.NewAuditPublisher(auditWriter, log),
		clk,
		inventory.NewMetrics(registry),
		log,
	)

	fileStore := pool.NewFileStore(cfg.Pool.AddressFile)
	allocator := pool.NewAllocator(store, fileStore, clk, registry, log)
	if _, err := allocator.ReplenishFromFile(ctx); err != nil {
		log.Warn().Err(err).Msg("initial pool replenishment failed")
	}

	notifier := mq.NewKafkaNotifier(notificationWriter, log)
	orders := order.NewService(store, engine, allocator, notifier, clk, log)

	swp := sweeper.New(store, engine, notifier, clk, cfg.Sweeper.Interval.Std(), registry, log)
	watcher := pool.NewWatcher(allocator, cfg.Pool.Debounce.Std(), log)

	apiMux := http.NewServeMux()
	httpapi.NewHandler(orders, engine, allocator, settings, log).Register(apiMux)
	apiServer := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: apiMux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.HTTP.MetricsAddr, Handler: metricsMux}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return swp.Run(groupCtx) })
	group.Go(func() error { return watcher.Run(groupCtx) })
	group.Go(func() error { return serve(apiServer) })
	group.Go(func() error { return serve(metricsServer) })
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := apiServer.Shutdown(shutdownCtx)
		if merr := metricsServer.Shutdown(shutdownCtx); err == nil {
			err = merr
		}
		return err
	})

	log.Info().
		Str("listen_addr", cfg.HTTP.ListenAddr).
		Str("metrics_addr", cfg.HTTP.MetricsAddr).
		Msg("fulfillment core started")

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("service exited with error")
	}
	log.Info().Msg("fulfillment core shut down")
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
