package main

import (
	"fmt"

	"github.com/Rrens/chat-relay/internal/config"
	"github.com/Rrens/chat-relay/internal/repository/postgres"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if cfg.Database.Driver != config.DriverPostgres {
		fmt.Printf("Nothing to migrate: the %s driver applies its schema on open\n", cfg.Database.Driver)
		return
	}

	fmt.Printf("Migrating database at %s:%d from %s...\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.MigrationsPath)

	if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath); err != nil {
		panic(fmt.Sprintf("Failed to migrate database: %v", err))
	}

	fmt.Println("Migrations applied")
}
