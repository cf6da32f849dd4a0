package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trialworks/eligibility-etl/internal/adapters/database"
	"github.com/trialworks/eligibility-etl/internal/adapters/events"
	"github.com/trialworks/eligibility-etl/internal/adapters/search"
	"github.com/trialworks/eligibility-etl/internal/application/services"
	"github.com/trialworks/eligibility-etl/internal/extraction"
	"github.com/trialworks/eligibility-etl/internal/infrastructure/clients/postgres"
	redisclient "github.com/trialworks/eligibility-etl/internal/infrastructure/clients/redis"
	"github.com/trialworks/eligibility-etl/internal/infrastructure/clients/typesense"
	"github.com/trialworks/eligibility-etl/internal/infrastructure/observability"
	"github.com/trialworks/eligibility-etl/pkg/config"
	"github.com/trialworks/eligibility-etl/pkg/secrets"
)

func main() {
	var reset bool
	var limit int
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "delete the existing corpus collection before transferring")
	flag.IntVar(&limit, "limit", 0, "maximum number of rows to transfer (0 = all)")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for transfer runs (e.g. 6h, 30m)")
	flag.Parse()

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("TRANSFER_INTERVAL"))
	}

	var interval time.Duration
	var err error
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			log.Fatal().Str("interval", intervalValue).Msg("Invalid transfer interval")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if result, err := secrets.Hydrate(ctx, secrets.ConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Failed to hydrate secrets from Vault")
	} else if result.Enabled {
		log.Info().Int("loaded", result.Loaded).Int("skipped", result.Skipped).
			Str("path", result.Path).Msg("Hydrated secrets from Vault")
	}

	for {
		if err := transferOnce(ctx, reset, limit); err != nil {
			if interval <= 0 {
				log.Fatal().Err(err).Msg("Transfer run failed")
			}
			log.Error().Err(err).Msg("Transfer run failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("interval", interval).Msg("Transfer complete, next run scheduled")

		select {
		case <-ctx.Done():
			log.Info().Msg("Transfer runner shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func transferOnce(ctx context.Context, reset bool, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment)

	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to shut down tracing")
			}
		}()
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		return err
	}

	if reset {
		log.Info().Str("collection", cfg.Transfer.Collection).Msg("Dropping corpus collection before transfer")
		if err := tsClient.DropCollection(ctx, cfg.Transfer.Collection); err != nil {
			log.Warn().Err(err).Msg("Failed to drop collection, continuing")
		}
	}

	rowLimit := cfg.Transfer.RowLimit
	if limit > 0 {
		rowLimit = limit
	}

	opts := services.Options{
		WriteRetryAttempts: cfg.Transfer.WriteRetryAttempts,
	}

	if cfg.OTEL.Enabled {
		metrics, err := observability.InitMetrics()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize metrics")
		} else {
			opts.Metrics = metrics
		}
	}

	if cfg.Transfer.EventsEnabled {
		rdClient, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			return err
		}
		defer rdClient.Close()
		opts.EventBus = events.NewRedisEventBus(rdClient, cfg.Transfer.EventsChannel)
	}

	service := services.NewTransferService(
		database.NewTrialAdapter(pgClient.DB(), cfg.Transfer.SourceTable, rowLimit),
		search.NewCorpusAdapter(tsClient, cfg.Transfer.Collection),
		extraction.New(),
		opts,
	)

	summary, err := service.Run(ctx)
	if err != nil {
		return err
	}

	if summary.StoreStats != nil {
		log.Info().
			Int("collections", summary.StoreStats.Collections).
			Int64("objects", summary.StoreStats.Objects).
			Int64("avg_obj_size_bytes", summary.StoreStats.AvgObjSizeBytes).
			Int64("data_size_bytes", summary.StoreStats.DataSizeBytes).
			Int64("storage_size_bytes", summary.StoreStats.StorageSizeBytes).
			Msg("Corpus store stats")
	}

	return nil
}
