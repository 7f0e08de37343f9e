package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelproxy/internal/allowlist"
	"github.com/dunamismax/pixelproxy/internal/api"
	"github.com/dunamismax/pixelproxy/internal/config"
	"github.com/dunamismax/pixelproxy/internal/logging"
	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/dunamismax/pixelproxy/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("could not load configuration")
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := buildAllowlist(ctx, cfg.Allowlist, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not build allowlist")
	}

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelproxy",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not set up tracing")
	}

	if err := pipeline.Startup(logger); err != nil {
		logger.Fatal().Err(err).Msg("could not start image runtime")
	}
	defer pipeline.Shutdown()

	fetcher := pipeline.NewHTTPFetcher(pipeline.FetcherConfig{
		Timeout:   cfg.Fetch.Timeout,
		MaxBytes:  cfg.Fetch.MaxBytes,
		UserAgent: cfg.Fetch.UserAgent,
	})
	processor, err := pipeline.NewProcessor(policy, fetcher, pipeline.Config{
		Concurrency:     cfg.Transform.Concurrency,
		Quality:         cfg.Transform.Quality,
		MaxDimension:    cfg.Transform.MaxDimension,
		MaxSourcePixels: cfg.Transform.MaxSourcePixels,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not build pipeline")
	}

	app := api.NewServer(logger, processor)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr).
			Int("allowed_domains", len(policy.Domains())).
			Int("transform_slots", cfg.Transform.Concurrency).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown failed")
	}
}

// buildAllowlist merges the configured domain list with the optional Redis
// set. Both are read exactly once; the resulting policy never changes.
func buildAllowlist(ctx context.Context, cfg config.AllowlistConfig, logger zerolog.Logger) (*allowlist.Policy, error) {
	domains := append([]string(nil), cfg.Domains...)

	if cfg.RedisEnabled() {
		client := redis.NewClient(cfg.RedisOptions())
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("redis client close error")
			}
		}()

		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		members, err := allowlist.LoadRedisSet(loadCtx, client, cfg.RedisKey)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("key", cfg.RedisKey).Int("domains", len(members)).Msg("loaded allowlist from redis")
		domains = append(domains, members...)
	}

	return allowlist.New(domains)
}
