package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/videotramites/vtramit/internal/appointment"
	"github.com/videotramites/vtramit/internal/config"
	"github.com/videotramites/vtramit/internal/db"
	"github.com/videotramites/vtramit/internal/docstore"
	"github.com/videotramites/vtramit/internal/monitor"
	"github.com/videotramites/vtramit/internal/queue"
	"github.com/videotramites/vtramit/internal/util"
)

// Binario del planificador: ejecuta la purga de datos caducados y la
// preparación del trabajo del día. Pensado para lanzarse cada hora desde
// cron.
func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("purga terminada con error")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	var store docstore.Store
	if cfg.Nextcloud.BaseURL != "" {
		store, err = docstore.NewNextcloudStore(docstore.NextcloudConfig{
			BaseURL:  cfg.Nextcloud.BaseURL,
			Username: cfg.Nextcloud.Username,
			Password: cfg.Nextcloud.Password,
		})
		if err != nil {
			return fmt.Errorf("docstore: %w", err)
		}
	} else {
		store = docstore.NewNoopStore()
	}

	appointmentRepo := appointment.NewRepository(pool)
	queueService := queue.NewService(queue.NewRepository(pool))
	service := appointment.NewService(appointmentRepo, queueService, store, nil, nil, util.SystemClock{}, cfg)

	notifier := monitor.NewSlackNotifier(cfg.SlackWebhookURL)

	if err := service.Purge(ctx, notifier); err != nil {
		return fmt.Errorf("purge: %w", err)
	}

	result, err := service.PrepareWorkForToday(ctx)
	if err != nil {
		return fmt.Errorf("preparetoday: %w", err)
	}
	log.Info().Str("result", result.Message).Msg("preparación del día completada")

	return nil
}
