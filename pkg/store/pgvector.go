package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/ragcore/internal/models"
)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	StatusTable string
	VectorDim   int
}

// VectorStore keeps document chunks in Postgres. Every query carries the
// organization id in its WHERE clause.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "document_chunks"
	}
	if config.StatusTable == "" {
		config.StatusTable = "indexing_status"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	for _, stmt := range schema(vs.config) {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}

func schema(c VectorStoreConfig) []string {
	t := c.TableName
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			paragraph_index INTEGER NOT NULL,
			embedding vector(%d),
			metadata JSONB,
			content_tsv tsvector GENERATED ALWAYS AS
				(to_tsvector('simple', coalesce(title, '') || ' ' || content)) STORED,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, t, c.VectorDim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_org_doc_idx ON %s (organization_id, document_id)`, t, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tsv_idx ON %s USING gin (content_tsv)`, t, t),
		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, t, t),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			processed_chunks INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (organization_id, document_id)
		)`, c.StatusTable),
	}
}

// ReplaceChunks swaps the stored chunks of one document for the given set in
// a single transaction. Prior chunks of the document in other organizations
// are untouched.
func (vs *VectorStore) ReplaceChunks(ctx context.Context, documentID, orgID string, chunks []models.Chunk) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	del := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1 AND organization_id = $2`, vs.config.TableName)
	if _, err := tx.Exec(ctx, del, documentID, orgID); err != nil {
		return fmt.Errorf("failed to delete prior chunks: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, organization_id, title, content, paragraph_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		vs.config.TableName)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(stmt,
			id,
			documentID,
			orgID,
			sanitizeUTF8(c.Title),
			sanitizeUTF8(c.Content),
			c.ParagraphIndex,
			pgvector.NewVector(c.Embedding),
			c.Metadata,
		)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LexicalSearch ranks chunks by ts_rank_cd over the generated tsvector.
func (vs *VectorStore) LexicalSearch(ctx context.Context, query, orgID string, limit int) ([]models.SearchResult, error) {
	q := fmt.Sprintf(`
		SELECT id, document_id, title, content, metadata, created_at,
			ts_rank_cd(content_tsv, plainto_tsquery('simple', $1)) AS score
		FROM %s
		WHERE organization_id = $2
			AND content_tsv @@ plainto_tsquery('simple', $1)
		ORDER BY score DESC, created_at
		LIMIT $3`,
		vs.config.TableName)

	results, err := vs.query(ctx, q, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrLexicalProvider, err)
	}
	return results, nil
}

// KeywordSearch is a case-insensitive containment match on title or
// content. Results carry a zero score.
func (vs *VectorStore) KeywordSearch(ctx context.Context, keyword, orgID string, limit int) ([]models.SearchResult, error) {
	q := fmt.Sprintf(`
		SELECT id, document_id, title, content, metadata, created_at, 0::float8 AS score
		FROM %s
		WHERE organization_id = $2
			AND (content ILIKE $1 ESCAPE '\' OR title ILIKE $1 ESCAPE '\')
		ORDER BY created_at DESC
		LIMIT $3`,
		vs.config.TableName)

	return vs.query(ctx, q, "%"+escapeLike(keyword)+"%", orgID, limit)
}

// VectorSearch returns chunks whose cosine similarity to embedding is above
// threshold, most similar first. Score is the raw similarity.
func (vs *VectorStore) VectorSearch(ctx context.Context, embedding []float32, orgID string, threshold float64, limit int) ([]models.SearchResult, error) {
	q := fmt.Sprintf(`
		SELECT id, document_id, title, content, metadata, created_at,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE organization_id = $2
			AND 1 - (embedding <=> $1) > $4
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vs.config.TableName)

	return vs.query(ctx, q, pgvector.NewVector(embedding), orgID, limit, threshold)
}

func (vs *VectorStore) query(ctx context.Context, q string, args ...any) ([]models.SearchResult, error) {
	rows, err := vs.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var (
			r     models.SearchResult
			title *string
		)
		err := rows.Scan(
			&r.ID,
			&r.DocumentID,
			&title,
			&r.Content,
			&r.Metadata,
			&r.CreatedAt,
			&r.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if title != nil {
			r.Title = *title
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

func (vs *VectorStore) Ping(ctx context.Context) error {
	return vs.pool.Ping(ctx)
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
