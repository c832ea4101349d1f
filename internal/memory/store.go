// Package memory is the retrieval context store: a persisted vector index
// over past failure records with similarity search.
package memory

import (
	"context"

	"github.com/traindiag/traindiag/internal/models"
)

// Embedder turns text into a vector. The Ollama client satisfies this.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the retrieval boundary used by the reasoning agent. Both
// implementations survive process restarts (load-or-create semantics).
type Store interface {
	// Insert indexes a diagnosed failure with the escalated log excerpt it
	// came from.
	Insert(ctx context.Context, record models.FailureRecord, excerpt string) error

	// Search returns up to k past failures ranked by similarity to query.
	// An empty store returns an empty result, not an error.
	Search(ctx context.Context, query string, k int) ([]models.FailureMemory, error)

	// Recent returns the n most recently inserted memories.
	Recent(ctx context.Context, n int) ([]models.FailureMemory, error)

	// Reset drops every stored memory.
	Reset(ctx context.Context) error

	Close() error
}
