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

	"github.com/clinsight/clinical-dashboard/internal/adapters/database"
	"github.com/clinsight/clinical-dashboard/internal/adapters/search"
	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/canvas"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/typesense"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/observability"
	"github.com/clinsight/clinical-dashboard/pkg/config"
)

func main() {
	var tokenFlag string
	var intervalFlag string
	flag.StringVar(&tokenFlag, "token", "", "EHR OAuth access token")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for syncing (e.g. 1h, 30m)")
	flag.Parse()

	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger("clinical-dashboard-sync", env)

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("CANVAS_ACCESS_TOKEN"))
	}
	if token == "" {
		log.Fatal().Msg("An access token is required: pass -token or set CANVAS_ACCESS_TOKEN")
	}

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("SYNC_INTERVAL"))
	}

	var interval time.Duration
	var err error
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("Invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("Interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := syncOnce(ctx, token); err != nil {
			log.Error().Err(err).Msg("Sync failed")
		}

		if interval <= 0 {
			break
		}

		log.Info().Dur("next_run_in", interval).Msg("Sync complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("Sync worker shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func syncOnce(ctx context.Context, token string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	patientRepo := database.NewPatientAdapter(pgClient)
	conditionRepo := database.NewConditionAdapter(pgClient)
	vitalsRepo := database.NewVitalsAdapter(pgClient)

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		log.Warn().Err(err).Msg("Typesense unavailable, synced patients will not be indexed")
	}

	var searchRepo repositories.PatientSearchRepository
	if tsClient != nil {
		adapter := search.NewTypesenseAdapter(tsClient)
		if err := adapter.InitSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to init search schema")
		}
		searchRepo = adapter
	}

	ehrClient := canvas.NewClient(cfg.Canvas.BaseURL, cfg.Canvas.ClientID, cfg.Canvas.ClientSecret)
	syncService := services.NewEHRSyncService(ehrClient, patientRepo, conditionRepo, vitalsRepo, searchRepo)

	start := time.Now()
	summary, err := syncService.Sync(ctx, token)
	if err != nil {
		return err
	}

	log.Info().
		Int("synced", len(summary.SyncedPatients)).
		Int("skipped", summary.Skipped).
		Dur("took", time.Since(start).Round(time.Millisecond)).
		Msg("Sync complete")
	return nil
}
