package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/videotramites/vtramit/internal/appointment"
	"github.com/videotramites/vtramit/internal/auth"
	"github.com/videotramites/vtramit/internal/config"
	"github.com/videotramites/vtramit/internal/db"
	"github.com/videotramites/vtramit/internal/directory"
	"github.com/videotramites/vtramit/internal/docstore"
	internalhttp "github.com/videotramites/vtramit/internal/http"
	"github.com/videotramites/vtramit/internal/monitor"
	"github.com/videotramites/vtramit/internal/queue"
	"github.com/videotramites/vtramit/internal/util"
	"github.com/videotramites/vtramit/internal/videoconference"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api terminada con error")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis parse: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
	}

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

	var dirClient directory.Client = directory.EmptyClient{}
	if cfg.Nextcloud.BaseURL != "" {
		ocsClient, err := directory.NewOCSClient(directory.OCSConfig{
			BaseURL:  cfg.Nextcloud.BaseURL,
			Username: cfg.Nextcloud.Username,
			Password: cfg.Nextcloud.Password,
		})
		if err != nil {
			return fmt.Errorf("directorio: %w", err)
		}
		dirClient = directory.NewCachedClient(ocsClient, redisClient)
	}
	policy := directory.NewPolicy(dirClient, cfg.Departments, cfg.GroupLimit, cfg.AdminUser)

	clock := util.SystemClock{}

	appointmentRepo := appointment.NewRepository(pool)
	queueService := queue.NewService(queue.NewRepository(pool))
	vcService := videoconference.NewService(videoconference.NewRepository(pool), appointmentRepo, clock, cfg.Timezone)
	appointmentService := appointment.NewService(appointmentRepo, queueService, store, vcService, policy, clock, cfg)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, 15*time.Minute)
	notifier := monitor.NewSlackNotifier(cfg.SlackWebhookURL)

	handler := internalhttp.NewRouter(internalhttp.Deps{
		Config:          cfg,
		Pool:            pool,
		Redis:           redisClient,
		JWT:             jwtManager,
		Appointments:    appointmentService,
		Queue:           queueService,
		Videoconference: vcService,
		Policy:          policy,
		Notifier:        notifier,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API escuchando en :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("cerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
