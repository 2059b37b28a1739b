package search_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/pkg/logging"
	"github.com/xhad/ragcore/pkg/search"
)

type fakeStore struct {
	mu       sync.Mutex
	orgs     []string
	calls    atomic.Int32
	lexical  func(query string, limit int) ([]models.SearchResult, error)
	keyword  func(keyword string) ([]models.SearchResult, error)
	vector   func(threshold float64, limit int) ([]models.SearchResult, error)
	keywords []string
}

func (f *fakeStore) record(org string) {
	f.calls.Add(1)
	f.mu.Lock()
	f.orgs = append(f.orgs, org)
	f.mu.Unlock()
}

func (f *fakeStore) ReplaceChunks(ctx context.Context, documentID, orgID string, chunks []models.Chunk) error {
	return nil
}

func (f *fakeStore) LexicalSearch(ctx context.Context, query, orgID string, limit int) ([]models.SearchResult, error) {
	f.record(orgID)
	if f.lexical == nil {
		return nil, nil
	}
	return f.lexical(query, limit)
}

func (f *fakeStore) KeywordSearch(ctx context.Context, keyword, orgID string, limit int) ([]models.SearchResult, error) {
	f.record(orgID)
	f.mu.Lock()
	f.keywords = append(f.keywords, keyword)
	f.mu.Unlock()
	if f.keyword == nil {
		return nil, nil
	}
	return f.keyword(keyword)
}

func (f *fakeStore) VectorSearch(ctx context.Context, embedding []float32, orgID string, threshold float64, limit int) ([]models.SearchResult, error) {
	f.record(orgID)
	if f.vector == nil {
		return nil, nil
	}
	return f.vector(threshold, limit)
}

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func result(id string, score float64) models.SearchResult {
	return models.SearchResult{ID: id, DocumentID: "doc-" + id, Title: "T" + id, Content: "content " + id, Score: score}
}

func ids(results []models.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

func newEngine(store *fakeStore, emb *fakeEmbedder) *search.Engine {
	return search.New(store, emb, search.DefaultConfig(), logging.Discard())
}

func TestEmptyQueryMakesNoCalls(t *testing.T) {
	store, emb := &fakeStore{}, &fakeEmbedder{}
	engine := newEngine(store, emb)

	for _, q := range []string{"", "   \n\t"} {
		results, total, err := engine.Search(context.Background(), models.SearchQuery{Text: q, OrganizationID: "org-1"})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, 0, total)
	}
	assert.Zero(t, store.calls.Load())
	assert.Zero(t, emb.calls.Load())
}

func TestMissingOrganization(t *testing.T) {
	engine := newEngine(&fakeStore{}, &fakeEmbedder{})
	_, _, err := engine.Search(context.Background(), models.SearchQuery{Text: "refunds"})
	assert.ErrorIs(t, err, models.ErrMissingOrg)
}

func TestFusionExample(t *testing.T) {
	store := &fakeStore{
		lexical: func(string, int) ([]models.SearchResult, error) {
			return []models.SearchResult{result("A", 0.9)}, nil
		},
		vector: func(float64, int) ([]models.SearchResult, error) {
			return []models.SearchResult{result("A", 0.8), result("B", 0.5)}, nil
		},
	}
	engine := newEngine(store, &fakeEmbedder{})

	results, total, err := engine.Search(context.Background(), models.SearchQuery{Text: "refund policy", OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, ids(results))
	assert.Equal(t, 2, total)
	assert.InDelta(t, 0.86, results[0].Score, 1e-9)
	assert.InDelta(t, 0.20, results[1].Score, 1e-9)
}

func TestFuseBothBranchesNotBelowEither(t *testing.T) {
	lex := []models.SearchResult{result("A", 0.3), result("C", 0.7)}
	vec := []models.SearchResult{result("A", 0.9), result("D", 0.2)}

	fused := search.Fuse(lex, vec, 0.6, 0.4)
	byID := map[string]float64{}
	for _, r := range fused {
		byID[r.ID] = r.Score
	}
	assert.GreaterOrEqual(t, byID["A"], 0.3*0.6)
	assert.GreaterOrEqual(t, byID["A"], 0.9*0.4)
	assert.Equal(t, []string{"A", "C", "D"}, ids(fused))
}

func TestFuseStableTies(t *testing.T) {
	lex := []models.SearchResult{result("X", 0.5), result("Y", 0.5)}
	vec := []models.SearchResult{result("Z", 0.5)}

	fused := search.Fuse(lex, vec, 0.5, 0.5)
	// all three score 0.25; first-seen order wins
	assert.Equal(t, []string{"X", "Y", "Z"}, ids(fused))
}

func TestOrganizationPassedToEveryBranch(t *testing.T) {
	store := &fakeStore{
		lexical: func(string, int) ([]models.SearchResult, error) {
			return nil, models.ErrLexicalProvider
		},
	}
	engine := newEngine(store, &fakeEmbedder{})

	_, _, err := engine.Search(context.Background(), models.SearchQuery{Text: "alpha beta", OrganizationID: "org-7"})
	require.NoError(t, err)

	require.Len(t, store.orgs, 4) // lexical, two keywords, vector
	for _, org := range store.orgs {
		assert.Equal(t, "org-7", org)
	}
}

func TestLexicalFallback(t *testing.T) {
	store := &fakeStore{
		lexical: func(string, int) ([]models.SearchResult, error) {
			return nil, models.ErrLexicalProvider
		},
		keyword: func(k string) ([]models.SearchResult, error) {
			switch k {
			case "refund":
				return []models.SearchResult{result("A", 0), result("B", 0)}, nil
			case "policy":
				return []models.SearchResult{result("B", 0), result("C", 0)}, nil
			}
			return nil, errors.New("keyword backend down")
		},
	}
	engine := newEngine(store, &fakeEmbedder{err: models.ErrEmbeddingProvider})

	results, total, err := engine.Search(context.Background(), models.SearchQuery{Text: "refund  policy broken", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"A", "B", "C"}, ids(results))
	for _, r := range results {
		assert.InDelta(t, 0.6*0.6, r.Score, 1e-9)
	}
	assert.Equal(t, []string{"refund", "policy", "broken"}, store.keywords)
}

func TestNoFallbackWhenLexicalSucceedsEmpty(t *testing.T) {
	store := &fakeStore{}
	engine := newEngine(store, &fakeEmbedder{})

	_, _, err := engine.Search(context.Background(), models.SearchQuery{Text: "nothing here", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Empty(t, store.keywords)
}

func TestVectorBranchDegrades(t *testing.T) {
	store := &fakeStore{
		lexical: func(string, int) ([]models.SearchResult, error) {
			return []models.SearchResult{result("A", 0.5)}, nil
		},
	}
	emb := &fakeEmbedder{err: models.ErrEmbeddingProvider}
	engine := newEngine(store, emb)

	results, _, err := engine.Search(context.Background(), models.SearchQuery{Text: "refund", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(results))
	assert.InDelta(t, 0.3, results[0].Score, 1e-9)
}

func TestBothBranchesAwaited(t *testing.T) {
	store := &fakeStore{
		lexical: func(string, int) ([]models.SearchResult, error) {
			return []models.SearchResult{result("A", 1)}, nil
		},
		vector: func(float64, int) ([]models.SearchResult, error) {
			time.Sleep(50 * time.Millisecond)
			return []models.SearchResult{result("slow", 1)}, nil
		},
	}
	engine := newEngine(store, &fakeEmbedder{})

	results, _, err := engine.Search(context.Background(), models.SearchQuery{Text: "q", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "slow"}, ids(results))
}

func TestLimitAndOffset(t *testing.T) {
	var gotLimit atomic.Int32
	var gotThreshold float64
	store := &fakeStore{
		lexical: func(_ string, limit int) ([]models.SearchResult, error) {
			gotLimit.Store(int32(limit))
			var out []models.SearchResult
			for i := 0; i < 30; i++ {
				out = append(out, result(string(rune('a'+i%26))+string(rune('0'+i/26)), float64(30-i)))
			}
			return out, nil
		},
		vector: func(threshold float64, _ int) ([]models.SearchResult, error) {
			gotThreshold = threshold
			return nil, nil
		},
	}
	engine := newEngine(store, &fakeEmbedder{})

	results, total, err := engine.Search(context.Background(), models.SearchQuery{Text: "q", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.Equal(t, 30, total)
	assert.Equal(t, int32(10), gotLimit.Load())
	assert.Equal(t, 0.3, gotThreshold)

	results, _, err = engine.Search(context.Background(), models.SearchQuery{Text: "q", OrganizationID: "org-1", Limit: 5, Offset: 25})
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, int32(30), gotLimit.Load())

	results, _, err = engine.Search(context.Background(), models.SearchQuery{Text: "q", OrganizationID: "org-1", Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, results, 30)
	assert.Equal(t, int32(100), gotLimit.Load())

	results, _, err = engine.Search(context.Background(), models.SearchQuery{Text: "q", OrganizationID: "org-1", Offset: 40})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWindow(t *testing.T) {
	e := newEngine(&fakeStore{}, &fakeEmbedder{})

	tests := []struct {
		limit, offset  int
		wantL, wantOff int
	}{
		{0, 0, 10, 0},
		{5, 2, 5, 2},
		{500, 0, 100, 0},
		{-1, -4, 10, 0},
	}
	for _, tt := range tests {
		l, o := e.Window(tt.limit, tt.offset)
		assert.Equal(t, tt.wantL, l, "limit for %d", tt.limit)
		assert.Equal(t, tt.wantOff, o, "offset for %d", tt.offset)
	}
}
