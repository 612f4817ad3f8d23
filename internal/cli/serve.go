package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/config"
	"mathwise-quiz-service/internal/infra/memory"
	"mathwise-quiz-service/internal/infra/postgres"
	rediscache "mathwise-quiz-service/internal/infra/redis"
	"mathwise-quiz-service/internal/platform/logger"
	transport "mathwise-quiz-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz API server",
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

	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		store     app.QuizStore
		selection app.SelectionReader
	)
	if cfg.Postgres.URL != "" {
		// Migrations need a live database; the store itself connects lazily
		// so an unreachable database surfaces on the first request, not here.
		if err := runMigrations(ctx, cfg, log); err != nil {
			log.Warn("migrations skipped", "err", err)
		}
		db := postgres.NewDB(cfg.Postgres.URL)
		store = postgres.NewQuizStore(db)

		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
		if err != nil {
			return err
		}
		// Lazy connect keeps an unreachable database from failing boot; the
		// first request reports the error instead.
		poolCfg.LazyConnect = true
		pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		selection = postgres.NewSelectionReader(pool)
	} else {
		log.Warn("postgres not configured, using in-memory store with sample data")
		memStore := memory.NewQuizStore()
		seedSampleData(memStore)
		store = memStore
		selection = memStore
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.Duration(cfg.Redis.TTL, 30*time.Second)
		store = rediscache.NewStoreCache(store, client, ttl)
	}

	service := app.NewQuizService(store)

	aiBase := cfg.AI.BaseURL
	if aiBase == "" {
		aiBase = "http://localhost:8000"
	}
	ai := app.NewAIProxy(aiBase, config.Duration(cfg.AI.Timeout, 10*time.Second), log)

	handler := transport.NewHandler(service, selection, ai, log)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(cfg.Auth.JWTSecret, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
