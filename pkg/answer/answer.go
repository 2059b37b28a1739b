package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/internal/types"
	"github.com/xhad/ragcore/pkg/llm"
	"github.com/xhad/ragcore/pkg/stream"
)

const (
	DefaultTopK     = 5
	DefaultCacheTTL = 300 * time.Second
	DefaultCost     = 0.002 / 1000

	streamBuffer = 16
)

var errConsumerGone = errors.New("stream consumer went away")

// Generator is the generative model, single-shot or streaming.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, models.Usage, error)
	Stream(ctx context.Context, prompt string, onDelta func(string) error) error
}

type Config struct {
	TopK         int
	CacheTTL     time.Duration
	CostPerToken float64
}

type Request struct {
	Query          string `json:"query"`
	UserID         string `json:"-"`
	OrganizationID string `json:"-"`
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return models.ErrEmptyQuery
	}
	if r.OrganizationID == "" {
		return models.ErrMissingOrg
	}
	return nil
}

// Synthesizer answers questions from an organization's documents.
type Synthesizer struct {
	searcher  types.Searcher
	generator Generator
	cache     types.Cache
	usage     types.UsageRecorder
	config    Config
	log       logrus.FieldLogger
	now       func() time.Time

	metering sync.WaitGroup
}

func New(
	searcher types.Searcher,
	generator Generator,
	cache types.Cache,
	usage types.UsageRecorder,
	config Config,
	log logrus.FieldLogger,
) *Synthesizer {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.CostPerToken <= 0 {
		config.CostPerToken = DefaultCost
	}
	return &Synthesizer{
		searcher:  searcher,
		generator: generator,
		cache:     cache,
		usage:     usage,
		config:    config,
		log:       log,
		now:       time.Now,
	}
}

// CacheKey is chat:<org>:<hex xxhash of the query>.
func CacheKey(orgID, query string) string {
	return fmt.Sprintf("chat:%s:%016x", orgID, xxhash.Sum64String(query))
}

// Generate returns a complete answer. Identical questions from the same
// organization are served from the cache for the configured TTL.
func (s *Synthesizer) Generate(ctx context.Context, req Request) (*models.ChatResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"organization_id": req.OrganizationID,
		"user_id":         req.UserID,
	})

	key := CacheKey(req.OrganizationID, req.Query)
	if cached, ok := s.cached(ctx, key, log); ok {
		log.Debug("answer served from cache")
		return cached, nil
	}

	sources, prompt, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	content, usage, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	resp := &models.ChatResponse{
		Content: content,
		Sources: sources,
		Usage:   usage,
	}

	if s.cache != nil {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.cache.Set(ctx, key, string(data), s.config.CacheTTL); err != nil {
				log.WithError(err).Warn("failed to cache answer")
			}
		}
	}

	s.meter(req, usage)

	return resp, nil
}

func (s *Synthesizer) cached(ctx context.Context, key string, log logrus.FieldLogger) (*models.ChatResponse, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("cache lookup failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp models.ChatResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		log.WithError(err).Warn("discarding unreadable cache entry")
		return nil, false
	}
	return &resp, true
}

func (s *Synthesizer) retrieve(ctx context.Context, req Request) ([]models.Source, string, error) {
	results, _, err := s.searcher.Search(ctx, models.SearchQuery{
		Text:           req.Query,
		OrganizationID: req.OrganizationID,
		Limit:          s.config.TopK,
	})
	if err != nil {
		return nil, "", fmt.Errorf("retrieving sources: %w", err)
	}

	prompt := llm.BuildPrompt(req.Query, llm.BuildContext(results))
	return toSources(results), prompt, nil
}

func toSources(results []models.SearchResult) []models.Source {
	sources := make([]models.Source, len(results))
	for i, r := range results {
		sources[i] = models.Source{
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Content:    r.Content,
			Score:      r.Score,
		}
	}
	return sources
}

// meter records usage in the background. Failures are logged and never
// reach the caller.
func (s *Synthesizer) meter(req Request, usage models.Usage) {
	if s.usage == nil {
		return
	}

	now := s.now().UTC()
	record := models.UsageRecord{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		TokensUsed:     usage.TotalTokens,
		APICalls:       1,
		Cost:           float64(usage.TotalTokens) * s.config.CostPerToken,
		Date:           now.Format("2006-01-02"),
		RecordedAt:     now,
	}

	s.metering.Add(1)
	go func() {
		defer s.metering.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.usage.Record(ctx, record); err != nil {
			s.log.WithError(err).WithField("organization_id", record.OrganizationID).Error("failed to record usage")
		}
	}()
}

// Wait blocks until pending usage records are written or have failed.
func (s *Synthesizer) Wait() {
	s.metering.Wait()
}

// Stream answers req as an ordered event sequence: sources first when any
// were found, then content deltas, then exactly one Done or error event.
// Cancelling ctx stops the upstream model and closes the channel.
func (s *Synthesizer) Stream(ctx context.Context, req Request) <-chan stream.Event {
	em := stream.NewEmitter(ctx, streamBuffer)

	go func() {
		defer em.Close()

		if err := req.validate(); err != nil {
			em.Fail(err)
			return
		}

		log := s.log.WithFields(logrus.Fields{
			"organization_id": req.OrganizationID,
			"user_id":         req.UserID,
		})

		sources, prompt, err := s.retrieve(ctx, req)
		if err != nil {
			log.WithError(err).Error("stream retrieval failed")
			em.Fail(err)
			return
		}

		if len(sources) > 0 && !em.Send(stream.Sources(sources)) {
			return
		}

		err = s.generator.Stream(ctx, prompt, func(delta string) error {
			if !em.Send(stream.Delta(delta)) {
				return errConsumerGone
			}
			return nil
		})

		switch {
		case errors.Is(err, errConsumerGone) || ctx.Err() != nil:
			log.Debug("stream cancelled by consumer")
		case err != nil:
			log.WithError(err).Error("stream generation failed")
			em.Fail(err)
		default:
			em.Done()
		}
	}()

	return em.Events()
}
