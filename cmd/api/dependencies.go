package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/avishkarn/smsledger/internal/domain/ingest/handler"
	"github.com/avishkarn/smsledger/internal/domain/ingest/repository"
	"github.com/avishkarn/smsledger/internal/domain/ingest/service"
	"github.com/avishkarn/smsledger/pkg/config"
	"github.com/avishkarn/smsledger/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	IngestRepo repository.IngestRepository

	// Services
	IngestService *service.IngestService

	// Handlers
	IngestHandler *handler.IngestHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	deps.IngestRepo = repository.NewPostgresIngestRepository(deps.DB.Pool)
	deps.IngestService = service.NewIngestService(deps.IngestRepo, logger)
	deps.IngestHandler = handler.NewIngestHandler(deps.IngestService, logger)

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
