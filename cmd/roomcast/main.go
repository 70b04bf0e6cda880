package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hyp3rd/roomcast/internal/config"
	"github.com/hyp3rd/roomcast/internal/instance"
	"github.com/hyp3rd/roomcast/pkg/api"
	"github.com/hyp3rd/roomcast/pkg/breaker"
	"github.com/hyp3rd/roomcast/pkg/bus"
	"github.com/hyp3rd/roomcast/pkg/directory"
	"github.com/hyp3rd/roomcast/pkg/health"
	"github.com/hyp3rd/roomcast/pkg/metrics"
	"github.com/hyp3rd/roomcast/pkg/middleware"
	"github.com/hyp3rd/roomcast/pkg/pingagg"
	"github.com/hyp3rd/roomcast/pkg/replication"
	"github.com/hyp3rd/roomcast/pkg/shard"
	"github.com/hyp3rd/roomcast/pkg/store"
)

const (
	shutdownTimeout = 10 * time.Second
	memSoftLimitMB  = 1024
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	err := run(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instanceID := instance.NewID(cfg.InstanceID)
	logger.Info("starting roomcast", zap.String("instance", instanceID.String()))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	roomStore, err := store.NewRedisStore(redisClient)
	if err != nil {
		return err
	}

	redisBreaker := breaker.New("redis",
		breaker.WithFailureThreshold(cfg.RedisBreaker.FailureThreshold),
		breaker.WithTimeout(time.Duration(cfg.RedisBreaker.TimeoutSeconds)*time.Second),
		breaker.WithLogger(logger),
	)
	busBreaker := breaker.New("bus",
		breaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		breaker.WithTimeout(time.Duration(cfg.Breaker.TimeoutSeconds)*time.Second),
		breaker.WithLogger(logger),
	)

	eventBus, err := bus.NewRedisBus(redisClient, bus.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = eventBus.Close() }()

	bridge, err := replication.New(eventBus, busBreaker, replication.WithLogger(logger))
	if err != nil {
		return err
	}

	sink, influxSink, shardBreakers, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}

	dirOpts := []directory.Option{
		directory.WithInstanceID(instanceID),
		directory.WithStoreBreaker(redisBreaker),
		directory.WithSink(sink),
		directory.WithLogger(logger),
		directory.WithExtraBreakers(append([]*breaker.CircuitBreaker{busBreaker}, shardBreakers...)...),
	}

	dir, err := directory.NewDirectory(ctx, roomStore, bridge, dirOpts...)
	if err != nil {
		return err
	}
	defer dir.Stop()

	err = bridge.Start(ctx, dir)
	if err != nil {
		return err
	}

	err = dir.Bootstrap(ctx)
	if err != nil {
		// Dependencies may still be warming up; the instance starts empty and
		// converges through replication.
		logger.Warn("bootstrap skipped", zap.Error(err))
	}

	agg := pingagg.New(dir,
		pingagg.WithInterval(time.Duration(cfg.PingIntervalSeconds)*time.Second),
		pingagg.WithLogger(logger),
	)
	go agg.Run(ctx)

	reporter := metrics.NewReporter(sink, instanceID.String(), func() (int, int) {
		stats := dir.Stats(context.Background())

		return stats.RoomCount, stats.MemberTotal
	}, time.Duration(cfg.HealthIntervalSeconds)*time.Second)
	go reporter.Run(ctx)

	healthReg := health.NewRegistry()
	healthReg.Register("redis", health.PingCheck(roomStore))
	healthReg.Register("redis_breaker", health.BreakerCheck(redisBreaker))
	healthReg.Register("bus_breaker", health.BreakerCheck(busBreaker))
	healthReg.Register("memory", health.MemoryCheck(memSoftLimitMB))

	for i, cb := range shardBreakers {
		healthReg.Register(fmt.Sprintf("metrics_shard_%d", i), health.BreakerCheck(cb))
	}

	var svc directory.Service = dir
	svc = middleware.NewLoggingMiddleware(svc, zap.NewStdLog(logger))

	svc, err = middleware.NewOTelMetricsMiddleware(svc, otel.GetMeterProvider().Meter("roomcast"))
	if err != nil {
		return err
	}

	serverOpts := []api.Option{}
	if influxSink != nil {
		serverOpts = append(serverOpts,
			api.WithAvgPingReader(influxSink, cfg.Metrics.Bucket),
			api.WithShardStatusReader(influxSink),
		)
	}

	srv := api.NewServer(cfg.HTTPAddr, svc, agg, healthReg, serverOpts...)

	err = srv.Start(ctx)
	if err != nil {
		return err
	}

	logger.Info("api listening", zap.String("addr", srv.Address()))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}

	if influxSink != nil {
		influxSink.Close()
	}

	return nil
}

// buildSink wires the sharded metrics backend, or a no-op sink when metrics
// are disabled.
func buildSink(cfg *config.Config, logger *zap.Logger) (metrics.Sink, *metrics.InfluxSink, []*breaker.CircuitBreaker, error) {
	if !cfg.Metrics.Enabled {
		return metrics.NopSink{}, nil, nil, nil
	}

	count := len(cfg.Metrics.Shards)
	breakers := make([]*breaker.CircuitBreaker, count)

	for i := range count {
		breakers[i] = breaker.New(fmt.Sprintf("influx-shard-%d", i),
			breaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			breaker.WithTimeout(time.Duration(cfg.Breaker.TimeoutSeconds)*time.Second),
			breaker.WithLogger(logger),
		)
	}

	router, err := shard.NewRouter(count, shard.WithBreakers(breakers))
	if err != nil {
		return nil, nil, nil, err
	}

	sink, err := metrics.NewInfluxSink(cfg.Metrics.Shards, router, metrics.WithInfluxLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}

	return sink, sink, breakers, nil
}
