package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xhad/ragcore/internal/models"
)

// UpsertStatus overwrites the single status record of a document within its
// organization.
func (vs *VectorStore) UpsertStatus(ctx context.Context, s models.IndexingStatus) error {
	now := time.Now().UTC()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (document_id, organization_id, status, progress, total_chunks, processed_chunks, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (organization_id, document_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			total_chunks = EXCLUDED.total_chunks,
			processed_chunks = EXCLUDED.processed_chunks,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`,
		vs.config.StatusTable)

	var errMsg *string
	if s.ErrorMessage != "" {
		errMsg = &s.ErrorMessage
	}

	_, err := vs.pool.Exec(ctx, stmt,
		s.DocumentID,
		s.OrganizationID,
		string(s.Status),
		s.Progress,
		s.TotalChunks,
		s.ProcessedChunks,
		errMsg,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert indexing status: %w", err)
	}
	return nil
}

// GetStatus returns ErrNotFound when the document was never indexed under
// orgID.
func (vs *VectorStore) GetStatus(ctx context.Context, documentID, orgID string) (*models.IndexingStatus, error) {
	q := fmt.Sprintf(`
		SELECT document_id, organization_id, status, progress, total_chunks, processed_chunks, error_message, created_at, updated_at
		FROM %s
		WHERE document_id = $1 AND organization_id = $2`,
		vs.config.StatusTable)

	var (
		s      models.IndexingStatus
		state  string
		errMsg *string
	)
	err := vs.pool.QueryRow(ctx, q, documentID, orgID).Scan(
		&s.DocumentID,
		&s.OrganizationID,
		&state,
		&s.Progress,
		&s.TotalChunks,
		&s.ProcessedChunks,
		&errMsg,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("indexing status for %s: %w", documentID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get indexing status: %w", err)
	}

	s.Status = models.IndexState(state)
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	return &s, nil
}
