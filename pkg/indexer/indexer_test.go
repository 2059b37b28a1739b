package indexer_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/pkg/indexer"
	"github.com/xhad/ragcore/pkg/logging"
	"github.com/xhad/ragcore/pkg/processor"
)

type fakeExtractor struct {
	result *models.ExtractionResult
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) (*models.ExtractionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.ExtractionResult{Text: string(data), Pages: 1}, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 1}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	history  []models.IndexingStatus
	latest   map[string]models.IndexingStatus
	chunks   map[string][]models.Chunk
	storeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		latest: make(map[string]models.IndexingStatus),
		chunks: make(map[string][]models.Chunk),
	}
}

func (f *fakeStore) UpsertStatus(ctx context.Context, s models.IndexingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, s)
	f.latest[s.OrganizationID+"/"+s.DocumentID] = s
	return nil
}

func (f *fakeStore) GetStatus(ctx context.Context, documentID, orgID string) (*models.IndexingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.latest[orgID+"/"+documentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) ReplaceChunks(ctx context.Context, documentID, orgID string, chunks []models.Chunk) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.chunks[orgID+"/"+documentID] = chunks
	return nil
}

func (f *fakeStore) LexicalSearch(ctx context.Context, query, orgID string, limit int) ([]models.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) KeywordSearch(ctx context.Context, keyword, orgID string, limit int) ([]models.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) VectorSearch(ctx context.Context, embedding []float32, orgID string, threshold float64, limit int) ([]models.SearchResult, error) {
	return nil, nil
}

type mapSource map[string][]byte

func (m mapSource) Fetch(ctx context.Context, documentID, orgID string) ([]byte, error) {
	data, ok := m[documentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return data, nil
}

const sampleDoc = "Refunds are processed within fourteen days of the original request date.\n\n" +
	"Shipping costs are not refundable unless the item arrived damaged or broken."

func newIndexer(ex *fakeExtractor, emb *fakeEmbedder, store *fakeStore) *indexer.Indexer {
	return indexer.New(ex, processor.New(), emb, store, store, logging.Discard())
}

func states(history []models.IndexingStatus) []string {
	var out []string
	for _, s := range history {
		out = append(out, string(s.Status)+"/"+strconv.Itoa(s.Progress))
	}
	return out
}

func TestIndexDocumentSuccess(t *testing.T) {
	store := newFakeStore()
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{}, store)

	status, err := ix.IndexDocument(context.Background(), "doc-1", "org-1", []byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 2, status.TotalChunks)
	assert.Equal(t, 2, status.ProcessedChunks)

	assert.Equal(t, []string{"processing/0", "processing/30", "completed/100"}, states(store.history))
	assert.Equal(t, 2, store.history[1].TotalChunks)

	chunks := store.chunks["org-1/doc-1"]
	require.Len(t, chunks, 2)
	for i, c := range chunks {
		assert.Equal(t, "org-1", c.OrganizationID)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, i, c.ParagraphIndex)
		assert.Equal(t, []float32{float32(i), 1}, c.Embedding)
		assert.Equal(t, "Untitled document", c.Title)
		assert.Equal(t, "en", c.Metadata["language"])
		assert.Equal(t, i, c.Metadata["chunk_index"])
	}
	assert.True(t, strings.HasPrefix(chunks[0].Content, "Refunds"))
}

func TestIndexDocumentShortParagraphs(t *testing.T) {
	store := newFakeStore()
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{}, store)

	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)
	status, err := ix.IndexDocument(context.Background(), "doc-short", "org-1", []byte(text))
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, status.Status)
	assert.Equal(t, 0, status.TotalChunks)
	assert.Empty(t, store.chunks["org-1/doc-short"])
}

func TestIndexDocumentExtractionFailure(t *testing.T) {
	store := newFakeStore()
	emb := &fakeEmbedder{}
	ix := newIndexer(&fakeExtractor{err: models.ErrExtraction}, emb, store)

	_, err := ix.IndexDocument(context.Background(), "doc-bad", "org-1", []byte("%PDF-garbage"))
	require.ErrorIs(t, err, models.ErrExtraction)
	assert.Zero(t, emb.calls)

	assert.Equal(t, []string{"processing/0", "failed/0"}, states(store.history))
	got, err := ix.GetIndexingStatus(context.Background(), "doc-bad", "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "text extraction failed")
}

func TestIndexDocumentEmbeddingFailure(t *testing.T) {
	store := newFakeStore()
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{err: models.ErrEmbeddingProvider}, store)

	_, err := ix.IndexDocument(context.Background(), "doc-2", "org-1", []byte(sampleDoc))
	require.ErrorIs(t, err, models.ErrEmbeddingProvider)
	assert.Equal(t, []string{"processing/0", "processing/30", "failed/0"}, states(store.history))
	assert.Empty(t, store.chunks)
}

func TestIndexDocumentStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.storeErr = errors.New("connection reset")
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{}, store)

	_, err := ix.IndexDocument(context.Background(), "doc-3", "org-1", []byte(sampleDoc))
	require.Error(t, err)
	last := store.history[len(store.history)-1]
	assert.Equal(t, models.StateFailed, last.Status)
	assert.Equal(t, 0, last.Progress)
}

func TestIndexDocumentUsesExtractedTitle(t *testing.T) {
	store := newFakeStore()
	ex := &fakeExtractor{result: &models.ExtractionResult{
		Text:     sampleDoc,
		Pages:    3,
		Metadata: models.ExtractionMetadata{Title: "Refund Policy", Author: "Support"},
	}}
	ix := newIndexer(ex, &fakeEmbedder{}, store)

	_, err := ix.IndexDocument(context.Background(), "doc-4", "org-1", nil)
	require.NoError(t, err)
	c := store.chunks["org-1/doc-4"][0]
	assert.Equal(t, "Refund Policy", c.Title)
	assert.Equal(t, 3, c.Metadata["pages"])
	assert.Equal(t, "Support", c.Metadata["author"])
}

func TestGetIndexingStatusAbsent(t *testing.T) {
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{}, newFakeStore())

	status, err := ix.GetIndexingStatus(context.Background(), "never-indexed", "org-1")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestIndexingStatusScopedByOrganization(t *testing.T) {
	store := newFakeStore()
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{}, store)

	_, err := ix.IndexDocument(context.Background(), "doc-9", "org-1", []byte(sampleDoc))
	require.NoError(t, err)

	own, err := ix.GetIndexingStatus(context.Background(), "doc-9", "org-1")
	require.NoError(t, err)
	require.NotNil(t, own)
	assert.Equal(t, "org-1", own.OrganizationID)
	assert.Equal(t, models.StateCompleted, own.Status)

	other, err := ix.GetIndexingStatus(context.Background(), "doc-9", "org-2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestBatchIndexDocumentsContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{}, store)
	ix.SetSource(mapSource{
		"doc-a": []byte(sampleDoc),
		"doc-c": []byte(sampleDoc),
	})

	results, err := ix.BatchIndexDocuments(context.Background(), []string{"doc-a", "doc-b", "doc-c"}, "org-1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.StateCompleted, results[0].Status)
	assert.Equal(t, models.StateFailed, results[1].Status)
	assert.Contains(t, results[1].ErrorMessage, "not found")
	assert.Equal(t, models.StateCompleted, results[2].Status)

	b, err := ix.GetIndexingStatus(context.Background(), "doc-b", "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, b.Status)
}

func TestBatchIndexDocumentsRequiresSource(t *testing.T) {
	ix := newIndexer(&fakeExtractor{}, &fakeEmbedder{}, newFakeStore())
	_, err := ix.BatchIndexDocuments(context.Background(), []string{"doc-a"}, "org-1")
	assert.Error(t, err)
}
