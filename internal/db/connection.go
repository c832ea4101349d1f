package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/traindiag/traindiag/internal/config"
	"github.com/traindiag/traindiag/internal/logger"
	"github.com/traindiag/traindiag/internal/models"
)

// Connect opens the Postgres connection for the retrieval store.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Database connected", map[string]interface{}{
		"host": cfg.DBHost,
		"name": cfg.DBName,
	})
	return database, nil
}

// Migrate creates the pgvector extension and the failure memory table.
func Migrate(database *gorm.DB) error {
	if err := database.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if err := database.AutoMigrate(&models.FailureMemory{}); err != nil {
		return fmt.Errorf("failed to migrate failure memories: %w", err)
	}
	return nil
}
