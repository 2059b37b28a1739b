package types

import (
	"context"
	"time"

	"github.com/xhad/ragcore/internal/models"
)

// Core interfaces

// ChunkStore persists and retrieves chunks. Every method is scoped to one
// organization; implementations must filter on it.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, documentID, orgID string, chunks []models.Chunk) error
	LexicalSearch(ctx context.Context, query, orgID string, limit int) ([]models.SearchResult, error)
	KeywordSearch(ctx context.Context, keyword, orgID string, limit int) ([]models.SearchResult, error)
	VectorSearch(ctx context.Context, embedding []float32, orgID string, threshold float64, limit int) ([]models.SearchResult, error)
}

type StatusStore interface {
	UpsertStatus(ctx context.Context, status models.IndexingStatus) error
	GetStatus(ctx context.Context, documentID, orgID string) (*models.IndexingStatus, error)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (*models.ExtractionResult, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, query models.SearchQuery) ([]models.SearchResult, int, error)
}

// DocumentSource hands out the raw binary of a document that the document
// management collaborator has already persisted.
type DocumentSource interface {
	Fetch(ctx context.Context, documentID, orgID string) ([]byte, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type UsageRecorder interface {
	Record(ctx context.Context, record models.UsageRecord) error
}
