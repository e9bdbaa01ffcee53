package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"test-session-service/internal/app"
	"test-session-service/internal/config"
	"test-session-service/internal/infra/memory"
	pgloader "test-session-service/internal/infra/postgres"
	infraredis "test-session-service/internal/infra/redis"
	"test-session-service/internal/infra/remote"
	transport "test-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the test session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 7*24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.CatalogLoader = memory.NewStaticCatalogLoader(sampleTests())
	if pool != nil {
		loader = pgloader.NewCatalogLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.CatalogRepository
	if redisClient != nil {
		catalog = infraredis.NewCatalogRepository(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogRepository(loader, catalogTTL)
	}

	var envelopes app.EnvelopeStore
	if redisClient != nil {
		envelopes = infraredis.NewSessionStore(redisClient, sessionTTL)
	} else {
		envelopes = memory.NewSessionStore()
	}

	upstream := remote.NewClient(cfg.Upstream.BaseURL, config.TTLDuration(cfg.Upstream.Timeout, remote.DefaultTimeout))
	service := app.NewService(app.ServiceDeps{
		Catalog:       catalog,
		Validator:     upstream,
		Definitions:   upstream,
		Sink:          upstream,
		Envelopes:     envelopes,
		Namespace:     cfg.Session.Namespace,
		TokenNotFound: cfg.Upstream.TokenNotFound,
		Idle:          config.TTLDuration(cfg.Session.Idle, app.DefaultIdleThreshold),
		Tick:          config.TTLDuration(cfg.Session.Tick, app.DefaultIdleCheck),
		NextURL:       cfg.Payment.NextURL,
	})
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	transport.NewAPIHandler(service).Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting test session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
