package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/traindiag/traindiag/internal/models"
)

// LocalStore is a single-file retrieval store: a JSON snapshot of memories
// with embeddings, ranked in memory by cosine similarity. It needs no server
// and is the default backend for the streaming simulation.
type LocalStore struct {
	path     string
	embedder Embedder

	mu      sync.RWMutex
	entries []localEntry
	nextID  uint
}

type localEntry struct {
	ID            uint                 `json:"id"`
	Excerpt       string               `json:"excerpt"`
	RootCause     string               `json:"rootCause"`
	ErrorType     string               `json:"errorType"`
	Source        models.FailureSource `json:"source"`
	IsRecoverable bool                 `json:"isRecoverable"`
	Mitigation    string               `json:"mitigation"`
	Embedding     []float32            `json:"embedding"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// NewLocalStore opens or creates the snapshot at path.
func NewLocalStore(path string, embedder Embedder) (*LocalStore, error) {
	s := &LocalStore{path: path, embedder: embedder, nextID: 1}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to decode memory snapshot: %w", err)
	}
	for _, e := range s.entries {
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}
	return s, nil
}

func (s *LocalStore) Insert(ctx context.Context, record models.FailureRecord, excerpt string) error {
	vector, err := s.embedder.Embed(ctx, excerpt)
	if err != nil {
		return fmt.Errorf("failed to embed failure excerpt: %w", err)
	}

	s.mu.Lock()
	entry := localEntry{
		ID:            s.nextID,
		Excerpt:       excerpt,
		RootCause:     record.RootCause,
		ErrorType:     record.ErrorType,
		Source:        record.Source,
		IsRecoverable: record.IsRecoverable,
		Mitigation:    record.Mitigation,
		Embedding:     vector,
		CreatedAt:     time.Now().UTC(),
	}
	s.nextID++
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	return s.save()
}

func (s *LocalStore) Search(ctx context.Context, query string, k int) ([]models.FailureMemory, error) {
	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry localEntry
		score float64
	}
	ranked := make([]scored, 0, len(s.entries))
	for _, entry := range s.entries {
		ranked = append(ranked, scored{entry: entry, score: cosineSimilarity(vector, entry.Embedding)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	memories := make([]models.FailureMemory, 0, k)
	for _, r := range ranked[:k] {
		memories = append(memories, r.entry.toModel())
	}
	return memories, nil
}

func (s *LocalStore) Recent(ctx context.Context, n int) ([]models.FailureMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.entries) {
		n = len(s.entries)
	}
	memories := make([]models.FailureMemory, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		memories = append(memories, s.entries[i].toModel())
	}
	return memories, nil
}

func (s *LocalStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.nextID = 1
	s.mu.Unlock()
	return s.save()
}

func (s *LocalStore) Close() error {
	return s.save()
}

// save snapshots the whole store with the same temp-then-rename discipline
// as the rule files.
func (s *LocalStore) save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode memory snapshot: %w", err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create memory temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write memory snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close memory snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace memory snapshot: %w", err)
	}
	return nil
}

func (e *localEntry) toModel() models.FailureMemory {
	return models.FailureMemory{
		ID:            e.ID,
		Excerpt:       e.Excerpt,
		RootCause:     e.RootCause,
		ErrorType:     e.ErrorType,
		Source:        e.Source,
		IsRecoverable: e.IsRecoverable,
		Mitigation:    e.Mitigation,
		CreatedAt:     e.CreatedAt,
	}
}

// cosineSimilarity computes cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*LocalStore)(nil)
