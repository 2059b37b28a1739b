package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/internal/types"
	"github.com/xhad/ragcore/pkg/processor"
)

const (
	progressStarted  = 0
	progressChunked  = 30
	progressComplete = 100

	keywordsPerChunk = 5
	untitled         = "Untitled document"
)

// Indexer turns one uploaded document into embedded, organization scoped
// chunks and records its progress in a single status row.
type Indexer struct {
	extractor types.Extractor
	processor processor.Processor
	embedder  types.Embedder
	chunks    types.ChunkStore
	status    types.StatusStore
	source    types.DocumentSource
	log       logrus.FieldLogger
}

func New(
	extractor types.Extractor,
	proc processor.Processor,
	embedder types.Embedder,
	chunks types.ChunkStore,
	status types.StatusStore,
	log logrus.FieldLogger,
) *Indexer {
	return &Indexer{
		extractor: extractor,
		processor: proc,
		embedder:  embedder,
		chunks:    chunks,
		status:    status,
		log:       log,
	}
}

// SetSource sets where BatchIndexDocuments fetches document binaries from.
func (ix *Indexer) SetSource(source types.DocumentSource) {
	ix.source = source
}

// IndexDocument runs extraction, chunking, embedding and persistence for one
// document. Any failure leaves a failed status behind and is returned.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID, orgID string, data []byte) (*models.IndexingStatus, error) {
	log := ix.log.WithFields(logrus.Fields{
		"document_id":     documentID,
		"organization_id": orgID,
	})

	if orgID == "" {
		return nil, models.ErrMissingOrg
	}

	if err := ix.setStatus(ctx, documentID, orgID, models.StateProcessing, progressStarted, 0, 0); err != nil {
		return ix.fail(ctx, log, documentID, orgID, err)
	}

	extracted, err := ix.extractor.Extract(ctx, data)
	if err != nil {
		return ix.fail(ctx, log, documentID, orgID, err)
	}
	log.WithFields(logrus.Fields{"chars": len(extracted.Text), "pages": extracted.Pages}).Debug("text extracted")

	pieces := ix.processor.Chunk(extracted.Text)
	total := len(pieces)

	if err := ix.setStatus(ctx, documentID, orgID, models.StateProcessing, progressChunked, total, 0); err != nil {
		return ix.fail(ctx, log, documentID, orgID, err)
	}

	texts := make([]string, total)
	for i, p := range pieces {
		texts[i] = p.Content
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return ix.fail(ctx, log, documentID, orgID, err)
	}
	if len(vectors) != total {
		return ix.fail(ctx, log, documentID, orgID,
			fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingProvider, len(vectors), total))
	}

	chunks := ix.buildChunks(documentID, orgID, extracted, pieces, vectors)
	if err := ix.chunks.ReplaceChunks(ctx, documentID, orgID, chunks); err != nil {
		return ix.fail(ctx, log, documentID, orgID, err)
	}

	if err := ix.setStatus(ctx, documentID, orgID, models.StateCompleted, progressComplete, total, total); err != nil {
		return ix.fail(ctx, log, documentID, orgID, err)
	}

	log.WithField("chunks", total).Info("document indexed")

	now := time.Now().UTC()
	return &models.IndexingStatus{
		DocumentID:      documentID,
		OrganizationID:  orgID,
		Status:          models.StateCompleted,
		Progress:        progressComplete,
		TotalChunks:     total,
		ProcessedChunks: total,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (ix *Indexer) buildChunks(
	documentID, orgID string,
	extracted *models.ExtractionResult,
	pieces []processor.Piece,
	vectors [][]float32,
) []models.Chunk {
	title := extracted.Metadata.Title
	if title == "" {
		title = untitled
	}

	now := time.Now().UTC()
	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		metadata := map[string]interface{}{
			"paragraph_index": p.ParagraphIndex,
			"chunk_index":     i,
			"keywords":        ix.processor.ExtractKeywords(p.Content, keywordsPerChunk),
			"language":        processor.DetectLanguage(p.Content),
		}
		if extracted.Pages > 0 {
			metadata["pages"] = extracted.Pages
		}
		if extracted.Metadata.Author != "" {
			metadata["author"] = extracted.Metadata.Author
		}

		chunks[i] = models.Chunk{
			DocumentID:     documentID,
			OrganizationID: orgID,
			Title:          title,
			Content:        p.Content,
			Embedding:      vectors[i],
			ParagraphIndex: p.ParagraphIndex,
			Metadata:       metadata,
			CreatedAt:      now,
		}
	}
	return chunks
}

func (ix *Indexer) setStatus(ctx context.Context, documentID, orgID string, state models.IndexState, progress, total, processed int) error {
	return ix.status.UpsertStatus(ctx, models.IndexingStatus{
		DocumentID:      documentID,
		OrganizationID:  orgID,
		Status:          state,
		Progress:        progress,
		TotalChunks:     total,
		ProcessedChunks: processed,
		UpdatedAt:       time.Now().UTC(),
	})
}

// fail records the failed state and hands the cause back to the caller.
func (ix *Indexer) fail(ctx context.Context, log logrus.FieldLogger, documentID, orgID string, cause error) (*models.IndexingStatus, error) {
	log.WithError(cause).Error("indexing failed")

	now := time.Now().UTC()
	status := models.IndexingStatus{
		DocumentID:     documentID,
		OrganizationID: orgID,
		Status:         models.StateFailed,
		ErrorMessage:   cause.Error(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := ix.status.UpsertStatus(ctx, status); err != nil {
		log.WithError(err).Error("failed to record failed status")
	}

	return &status, fmt.Errorf("indexing document %s: %w", documentID, cause)
}

// GetIndexingStatus returns nil without error for a document that was never
// indexed under orgID.
func (ix *Indexer) GetIndexingStatus(ctx context.Context, documentID, orgID string) (*models.IndexingStatus, error) {
	status, err := ix.status.GetStatus(ctx, documentID, orgID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// BatchIndexDocuments indexes the given documents one after the other. A
// failing document yields a failed entry and does not stop the rest.
func (ix *Indexer) BatchIndexDocuments(ctx context.Context, documentIDs []string, orgID string) ([]models.IndexingStatus, error) {
	if ix.source == nil {
		return nil, errors.New("no document source configured")
	}
	if orgID == "" {
		return nil, models.ErrMissingOrg
	}

	results := make([]models.IndexingStatus, 0, len(documentIDs))
	for _, id := range documentIDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		status, err := ix.indexFromSource(ctx, id, orgID)
		if err != nil {
			ix.log.WithError(err).WithField("document_id", id).Warn("batch item failed")
		}
		results = append(results, *status)
	}

	return results, nil
}

func (ix *Indexer) indexFromSource(ctx context.Context, documentID, orgID string) (*models.IndexingStatus, error) {
	data, err := ix.source.Fetch(ctx, documentID, orgID)
	if err != nil {
		return ix.fail(ctx, ix.log.WithField("document_id", documentID), documentID, orgID,
			fmt.Errorf("fetching document: %w", err))
	}
	return ix.IndexDocument(ctx, documentID, orgID, data)
}
