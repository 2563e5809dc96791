package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/geohash-udf/internal/cache/cellindex"
	"github.com/mohammed-shakir/geohash-udf/internal/cache/redisstore"
	"github.com/mohammed-shakir/geohash-udf/internal/core/config"
	"github.com/mohammed-shakir/geohash-udf/internal/core/observability"
	"github.com/mohammed-shakir/geohash-udf/internal/core/router"
	"github.com/mohammed-shakir/geohash-udf/internal/core/server"
	"github.com/mohammed-shakir/geohash-udf/internal/ingest/kafkaconsumer"
	"github.com/mohammed-shakir/geohash-udf/internal/logger"
	"github.com/mohammed-shakir/geohash-udf/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Service:   "geohash-server",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting geohash server",
		"addr", cfg.Addr,
		"version", Version,
		"length", cfg.GeohashLength,
		"range_policy", cfg.RangePolicy,
		"index", cfg.IndexEnabled,
		"ingest", cfg.Ingest.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   firstNonEmpty(os.Getenv("BUILD_VERSION"), Version),
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), true)

	handlers, err := router.New(appLog, cfg)
	if err != nil {
		appLog.Error("failed to bind geohash function", "err", err)
		return 1
	}

	deps := server.NewDeps(cfg, p.Handler())

	var index cellindex.CellIndex
	if cfg.IndexEnabled || cfg.Ingest.Enabled {
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = cli.Close() }()
		deps.Ready["redis"] = cli

		index, err = cellindex.NewRedisIndex(cli, cfg.IndexPrecision, cfg.CacheOpTimeout)
		if err != nil {
			appLog.Error("invalid index precision", "precision", cfg.IndexPrecision, "err", err)
			return 1
		}
		if cfg.IndexEnabled {
			if _, err := handlers.WithIndex(index); err != nil {
				appLog.Error("failed to enable point routes", "err", err)
				return 1
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error { return p.Serve(gctx, appLog) })
	}

	if cfg.Ingest.Enabled {
		opts, err := router.FunctionOptions(cfg)
		if err != nil {
			appLog.Error("invalid function options", "err", err)
			return 1
		}
		consumerLog := zl.With().Str("component", "kafka_consumer").Logger()
		c, err := kafkaconsumer.New(kafkaconsumer.FromIngestCfg(cfg.Ingest), appLog, index, opts...)
		if err != nil {
			appLog.Error("failed to create kafka consumer", "err", err)
			return 1
		}
		c.WithZerolog(&consumerLog)
		g.Go(func() error { return c.Start(gctx) })
	}

	g.Go(func() error { return server.Run(gctx, cfg, appLog, handlers, deps) })

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
