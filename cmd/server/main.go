package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Rrens/chat-relay/internal/api"
	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/logger"
	"github.com/Rrens/chat-relay/internal/repository/postgres"
	"github.com/Rrens/chat-relay/internal/repository/redis"
	"github.com/Rrens/chat-relay/internal/repository/sqlite"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := false
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		fmt.Println("Warning: .env file not found in any standard location")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logFile, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logFile.Close()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("database", cfg.Database.Driver).
		Msg("Starting chat relay server")

	ctx := context.Background()

	deps, closeDB, err := openStorage(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer closeDB()

	// Redis only backs rate limiting, so the server runs without it
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, rate limiting disabled")
		} else {
			defer redisClient.Close()
			deps.Redis = redisClient
		}
	}

	router := api.NewRouter(cfg, deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// openStorage connects the configured durable store and returns its repositories
func openStorage(ctx context.Context, cfg config.DatabaseConfig) (api.Dependencies, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if cfg.SQLitePath != sqlite.MemoryPath {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return api.Dependencies{}, nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return api.Dependencies{}, nil, err
		}
		return api.Dependencies{
			DB:       db,
			Users:    sqlite.NewUserRepository(db),
			Sessions: sqlite.NewSessionRepository(db),
			Messages: sqlite.NewMessageRepository(db),
		}, db.Close, nil

	case config.DriverPostgres:
		if err := postgres.RunMigrations(cfg.DSN(), cfg.MigrationsPath); err != nil {
			return api.Dependencies{}, nil, err
		}
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return api.Dependencies{}, nil, err
		}
		return api.Dependencies{
			DB:       db,
			Users:    postgres.NewUserRepository(db),
			Sessions: postgres.NewSessionRepository(db),
			Messages: postgres.NewMessageRepository(db),
		}, db.Close, nil

	default:
		return api.Dependencies{}, nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}
