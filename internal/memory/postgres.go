package memory

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/traindiag/traindiag/internal/models"
)

// PostgresStore keeps failure memories in Postgres and ranks them with
// pgvector cosine distance.
type PostgresStore struct {
	db       *gorm.DB
	embedder Embedder
}

func NewPostgresStore(db *gorm.DB, embedder Embedder) *PostgresStore {
	return &PostgresStore{db: db, embedder: embedder}
}

func (s *PostgresStore) Insert(ctx context.Context, record models.FailureRecord, excerpt string) error {
	vector, err := s.embedder.Embed(ctx, excerpt)
	if err != nil {
		return fmt.Errorf("failed to embed failure excerpt: %w", err)
	}

	mem := models.FailureMemory{
		Excerpt:       excerpt,
		RootCause:     record.RootCause,
		ErrorType:     record.ErrorType,
		Source:        record.Source,
		IsRecoverable: record.IsRecoverable,
		Mitigation:    record.Mitigation,
		Embedding:     pgvector.NewVector(vector),
	}
	if err := s.db.WithContext(ctx).Create(&mem).Error; err != nil {
		return fmt.Errorf("failed to store failure memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, query string, k int) ([]models.FailureMemory, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var memories []models.FailureMemory
	err = s.db.WithContext(ctx).
		Raw(`SELECT * FROM failure_memories ORDER BY embedding <=> ? LIMIT ?`,
			pgvector.NewVector(vector), k).
		Scan(&memories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search failure memories: %w", err)
	}
	return memories, nil
}

func (s *PostgresStore) Recent(ctx context.Context, n int) ([]models.FailureMemory, error) {
	var memories []models.FailureMemory
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(n).
		Find(&memories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failure memories: %w", err)
	}
	return memories, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec(`DELETE FROM failure_memories`).Error; err != nil {
		return fmt.Errorf("failed to reset failure memories: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*PostgresStore)(nil)
