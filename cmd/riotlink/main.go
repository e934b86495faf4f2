// Command riotlink runs the Discord bot that links members to their Riot
// accounts, together with its admin health and metrics listeners.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/daladal/discord-bot/internal/bot"
	"github.com/daladal/discord-bot/internal/config"
	"github.com/daladal/discord-bot/internal/limiter"
	"github.com/daladal/discord-bot/internal/metrics"
	"github.com/daladal/discord-bot/internal/riot"
	grpcserver "github.com/daladal/discord-bot/internal/server/grpc"
	"github.com/daladal/discord-bot/internal/service"
	"github.com/daladal/discord-bot/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main loads configuration, opens the store, connects to the Discord gateway
// and blocks until SIGINT or SIGTERM.
func main() {
	cfgPath := flag.String("config", "", "path to a TOML config file")
	driver := flag.String("driver", "", "storage driver: postgres or sqlite")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides "+config.EnvDatabaseDSN+")")
	adminAddr := flag.String("admin-addr", "", "gRPC health listen address")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address")
	dev := flag.Bool("dev", false, "development logging and gRPC reflection")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	if *driver != "" {
		cfg.Storage.Driver = *driver
	}
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}
	if *adminAddr != "" {
		cfg.Admin.Addr = *adminAddr
	}
	if *metricsAddr != "" {
		cfg.Admin.MetricsAddr = *metricsAddr
	}
	if *dev {
		cfg.Log.Debug = true
		cfg.Admin.Reflection = true
	}

	var logger *zap.Logger
	if cfg.Log.Debug {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("driver", cfg.Storage.Driver),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	verifier := riot.NewClient(cfg.Riot.APIKey,
		riot.WithHTTPClient(&http.Client{Timeout: cfg.Riot.Timeout}),
		riot.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Riot.RequestsPerSecond), 1)),
		riot.WithLogger(logger.Named("riot")),
	)

	links := service.NewLinkService(st.Links, verifier,
		service.WithLinkTTL(cfg.Cache.LinkTTL),
		service.WithLimiter(limiter.NewMemory(cfg.Link.PerUserBurst, cfg.Link.PerUserInterval)),
		service.WithMetrics(m),
		service.WithLogger(logger.Named("links")),
	)
	configs := service.NewConfigService(st.Configs, m, logger.Named("configs"))
	n, err := configs.Warm(ctx)
	if err != nil {
		logger.Fatal("load server configs", zap.Error(err))
	}
	logger.Info("server configs loaded", zap.Int("count", n))

	// Admin listeners
	var admin *grpcserver.Admin
	if cfg.Admin.Addr != "" {
		admin = grpcserver.New(st.Pinger, grpcserver.Options{
			Interval:   cfg.Admin.HealthInterval,
			Reflection: cfg.Admin.Reflection,
		}, logger.Named("admin"))
		lis, err := net.Listen("tcp", cfg.Admin.Addr)
		if err != nil {
			logger.Fatal("listen", zap.String("addr", cfg.Admin.Addr), zap.Error(err))
		}
		go admin.Watch(ctx)
		go func() {
			logger.Info("admin listening", zap.String("addr", cfg.Admin.Addr))
			if err := admin.Serve(lis); err != nil {
				logger.Error("admin server", zap.Error(err))
			}
		}()
	}

	var metricsSrv *http.Server
	if cfg.Admin.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsSrv = &http.Server{Addr: cfg.Admin.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.Admin.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	// Discord gateway
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("discord session", zap.Error(err))
	}
	session.Identify.Intents = bot.Intents
	b := bot.New(links, configs, session, logger.Named("bot"),
		bot.WithMetrics(m),
		bot.WithTimeout(cfg.Discord.CommandTimeout),
	)
	b.Register(session)
	if err := session.Open(); err != nil {
		logger.Fatal("open discord gateway", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if err := session.Close(); err != nil {
		logger.Warn("close discord gateway", zap.Error(err))
	}
	if admin != nil {
		admin.Stop(shutdownTimeout)
	}
	if metricsSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = metricsSrv.Shutdown(sctx)
		cancel()
	}
	logger.Info("shutdown complete")
}
