package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/internal/types"
)

// Ensure Engine implements the interface.
var _ types.Searcher = (*Engine)(nil)

type Config struct {
	DefaultLimit        int
	MaxLimit            int
	SimilarityThreshold float64
	LexicalWeight       float64
	VectorWeight        float64
	FallbackScore       float64
}

func DefaultConfig() Config {
	return Config{
		DefaultLimit:        10,
		MaxLimit:            100,
		SimilarityThreshold: 0.3,
		LexicalWeight:       0.6,
		VectorWeight:        0.4,
		FallbackScore:       0.6,
	}
}

// Engine runs hybrid lexical and vector retrieval over one organization's
// chunks and fuses the two rankings.
type Engine struct {
	store    types.ChunkStore
	embedder types.Embedder
	config   Config
	log      logrus.FieldLogger
}

func New(store types.ChunkStore, embedder types.Embedder, config Config, log logrus.FieldLogger) *Engine {
	d := DefaultConfig()
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = d.DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = d.MaxLimit
	}
	if config.LexicalWeight == 0 && config.VectorWeight == 0 {
		config.LexicalWeight, config.VectorWeight = d.LexicalWeight, d.VectorWeight
	}
	if config.FallbackScore == 0 {
		config.FallbackScore = d.FallbackScore
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		config:   config,
		log:      log,
	}
}

// Search returns one page of fused results and the number of fused
// candidates before pagination. A failing branch contributes nothing; the
// call itself only fails on invalid input.
func (e *Engine) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchResult, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return []models.SearchResult{}, 0, nil
	}
	if q.OrganizationID == "" {
		return nil, 0, models.ErrMissingOrg
	}

	limit, offset := e.Window(q.Limit, q.Offset)
	fetch := offset + limit

	log := e.log.WithFields(logrus.Fields{
		"organization_id": q.OrganizationID,
		"limit":           limit,
		"offset":          offset,
	})

	var (
		wg               sync.WaitGroup
		lexical, vectors []models.SearchResult
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexical = e.lexicalBranch(ctx, text, q.OrganizationID, fetch, log)
	}()
	go func() {
		defer wg.Done()
		vectors = e.vectorBranch(ctx, text, q.OrganizationID, fetch, log)
	}()
	wg.Wait()

	fused := Fuse(lexical, vectors, e.config.LexicalWeight, e.config.VectorWeight)
	total := len(fused)

	log.WithFields(logrus.Fields{
		"lexical": len(lexical),
		"vector":  len(vectors),
		"fused":   total,
	}).Debug("hybrid search done")

	return paginate(fused, offset, limit), total, nil
}

// Window returns the limit and offset Search actually applies for the
// requested ones.
func (e *Engine) Window(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = e.config.DefaultLimit
	case limit > e.config.MaxLimit:
		limit = e.config.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (e *Engine) lexicalBranch(ctx context.Context, text, orgID string, limit int, log logrus.FieldLogger) []models.SearchResult {
	results, err := e.store.LexicalSearch(ctx, text, orgID, limit)
	if err == nil {
		return results
	}

	log.WithError(err).WithField("branch", "lexical").Warn("ranked search failed, using keyword fallback")
	return e.keywordFallback(ctx, text, orgID, limit, log)
}

// keywordFallback searches each whitespace separated keyword on its own and
// unions the hits in first-seen order under a flat score.
func (e *Engine) keywordFallback(ctx context.Context, text, orgID string, limit int, log logrus.FieldLogger) []models.SearchResult {
	seen := make(map[string]bool)
	var results []models.SearchResult

	for _, keyword := range strings.Fields(text) {
		hits, err := e.store.KeywordSearch(ctx, keyword, orgID, limit)
		if err != nil {
			log.WithError(err).WithField("keyword", keyword).Warn("keyword search failed")
			continue
		}
		for _, h := range hits {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			h.Score = e.config.FallbackScore
			results = append(results, h)
		}
	}

	return results
}

func (e *Engine) vectorBranch(ctx context.Context, text, orgID string, limit int, log logrus.FieldLogger) []models.SearchResult {
	if e.embedder == nil {
		return nil
	}

	embedding, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		log.WithError(err).WithField("branch", "vector").Warn("query embedding failed")
		return nil
	}

	results, err := e.store.VectorSearch(ctx, embedding, orgID, e.config.SimilarityThreshold, limit)
	if err != nil {
		log.WithError(err).WithField("branch", "vector").Warn("vector search failed")
		return nil
	}
	return results
}

// Fuse merges both rankings by chunk id. Each branch contributes its score
// times its weight; chunks found by both sum the contributions. Ties keep
// the order in which chunks were first seen, lexical results first.
func Fuse(lexical, vector []models.SearchResult, lexicalWeight, vectorWeight float64) []models.SearchResult {
	index := make(map[string]int, len(lexical)+len(vector))
	fused := make([]models.SearchResult, 0, len(lexical)+len(vector))

	add := func(results []models.SearchResult, weight float64) {
		for _, r := range results {
			contribution := r.Score * weight
			if i, ok := index[r.ID]; ok {
				fused[i].Score += contribution
				continue
			}
			index[r.ID] = len(fused)
			r.Score = contribution
			fused = append(fused, r)
		}
	}
	add(lexical, lexicalWeight)
	add(vector, vectorWeight)

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}

func paginate(results []models.SearchResult, offset, limit int) []models.SearchResult {
	if offset >= len(results) {
		return []models.SearchResult{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
