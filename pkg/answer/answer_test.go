package answer_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/pkg/answer"
	"github.com/xhad/ragcore/pkg/cache"
	"github.com/xhad/ragcore/pkg/logging"
	"github.com/xhad/ragcore/pkg/stream"
)

type fakeSearcher struct {
	results []models.SearchResult
	err     error
	queries []models.SearchQuery
}

func (f *fakeSearcher) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchResult, int, error) {
	f.queries = append(f.queries, q)
	return f.results, len(f.results), f.err
}

type fakeGenerator struct {
	calls   atomic.Int32
	content string
	usage   models.Usage
	chunks  []string
	err     error
	block   chan struct{}
	stopped chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, models.Usage, error) {
	f.calls.Add(1)
	return f.content, f.usage, f.err
}

func (f *fakeGenerator) Stream(ctx context.Context, prompt string, onDelta func(string) error) error {
	f.calls.Add(1)
	if f.stopped != nil {
		defer close(f.stopped)
	}
	for i, c := range f.chunks {
		if f.block != nil && i == 1 {
			select {
			case <-f.block:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := onDelta(c); err != nil {
			return err
		}
	}
	return f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []models.UsageRecord
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, r models.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return f.err
}

var docs = []models.SearchResult{
	{ID: "c1", DocumentID: "d1", Title: "Policy", Content: "Refunds take 14 days.", Score: 0.86},
	{ID: "c2", DocumentID: "d2", Title: "FAQ", Content: "Contact support.", Score: 0.2},
}

func request() answer.Request {
	return answer.Request{Query: "How long do refunds take?", UserID: "user-1", OrganizationID: "org-1"}
}

func collect(t *testing.T, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func kinds(events []stream.Event) []stream.Kind {
	var out []stream.Kind
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestCacheKey(t *testing.T) {
	k := answer.CacheKey("org-1", "q")
	assert.True(t, strings.HasPrefix(k, "chat:org-1:"))
	assert.Len(t, strings.TrimPrefix(k, "chat:org-1:"), 16)
	assert.Equal(t, k, answer.CacheKey("org-1", "q"))
	assert.NotEqual(t, k, answer.CacheKey("org-2", "q"))
}

func TestGenerate(t *testing.T) {
	searcher := &fakeSearcher{results: docs}
	gen := &fakeGenerator{content: "14 days.", usage: models.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}}
	rec := &fakeRecorder{}
	s := answer.New(searcher, gen, cache.NewMemory(), rec, answer.Config{}, logging.Discard())

	resp, err := s.Generate(context.Background(), request())
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, "14 days.", resp.Content)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, models.Source{DocumentID: "d1", Title: "Policy", Content: "Refunds take 14 days.", Score: 0.86}, resp.Sources[0])
	raw, err := json.Marshal(resp.Sources[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"document_id":"d1","title":"Policy","content":"Refunds take 14 days.","score":0.86}`, string(raw))
	assert.Equal(t, 150, resp.Usage.TotalTokens)
	assert.Equal(t, 5, searcher.queries[0].Limit)
	assert.Equal(t, "org-1", searcher.queries[0].OrganizationID)

	require.Len(t, rec.records, 1)
	assert.Equal(t, 150, rec.records[0].TokensUsed)
	assert.InDelta(t, 0.0003, rec.records[0].Cost, 1e-12)
	assert.Equal(t, "user-1", rec.records[0].UserID)
}

func TestGenerateCacheHit(t *testing.T) {
	gen := &fakeGenerator{content: "14 days.", usage: models.Usage{TotalTokens: 10}}
	s := answer.New(&fakeSearcher{results: docs}, gen, cache.NewMemory(), nil, answer.Config{}, logging.Discard())

	first, err := s.Generate(context.Background(), request())
	require.NoError(t, err)
	second, err := s.Generate(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), gen.calls.Load())

	other := request()
	other.OrganizationID = "org-2"
	_, err = s.Generate(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestGenerateMeteringFailureIgnored(t *testing.T) {
	gen := &fakeGenerator{content: "ok", usage: models.Usage{TotalTokens: 10}}
	rec := &fakeRecorder{err: errors.New("broker down")}
	s := answer.New(&fakeSearcher{}, gen, nil, rec, answer.Config{}, logging.Discard())

	resp, err := s.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	s.Wait()
	assert.Len(t, rec.records, 1)
}

func TestGenerateErrors(t *testing.T) {
	s := answer.New(&fakeSearcher{}, &fakeGenerator{err: models.ErrLLMProvider}, nil, nil, answer.Config{}, logging.Discard())

	_, err := s.Generate(context.Background(), request())
	assert.ErrorIs(t, err, models.ErrLLMProvider)

	_, err = s.Generate(context.Background(), answer.Request{Query: "  ", OrganizationID: "org-1"})
	assert.ErrorIs(t, err, models.ErrEmptyQuery)

	_, err = s.Generate(context.Background(), answer.Request{Query: "q"})
	assert.ErrorIs(t, err, models.ErrMissingOrg)
}

func TestStreamOrdering(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"Refunds ", "take ", "14 days."}}
	s := answer.New(&fakeSearcher{results: docs}, gen, nil, nil, answer.Config{}, logging.Discard())

	events := collect(t, s.Stream(context.Background(), request()))
	assert.Equal(t, []stream.Kind{
		stream.KindSources, stream.KindDelta, stream.KindDelta, stream.KindDelta, stream.KindDone,
	}, kinds(events))
	assert.Len(t, events[0].Sources, 2)
	assert.Equal(t, "Refunds ", events[1].Content)
	assert.Equal(t, "14 days.", events[3].Content)
}

func TestStreamNoSources(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"I don't know."}}
	s := answer.New(&fakeSearcher{}, gen, nil, nil, answer.Config{}, logging.Discard())

	events := collect(t, s.Stream(context.Background(), request()))
	assert.Equal(t, []stream.Kind{stream.KindDelta, stream.KindDone}, kinds(events))
}

func TestStreamProviderError(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"partial"}, err: models.ErrLLMProvider}
	s := answer.New(&fakeSearcher{results: docs}, gen, nil, nil, answer.Config{}, logging.Discard())

	events := collect(t, s.Stream(context.Background(), request()))
	assert.Equal(t, []stream.Kind{stream.KindSources, stream.KindDelta, stream.KindError}, kinds(events))
	assert.Contains(t, events[2].Error, "llm provider error")
}

func TestStreamSearchError(t *testing.T) {
	s := answer.New(&fakeSearcher{err: models.ErrMissingOrg}, &fakeGenerator{}, nil, nil, answer.Config{}, logging.Discard())

	events := collect(t, s.Stream(context.Background(), request()))
	assert.Equal(t, []stream.Kind{stream.KindError}, kinds(events))
}

func TestStreamCancelStopsProvider(t *testing.T) {
	gen := &fakeGenerator{
		chunks:  []string{"first", "second", "third"},
		block:   make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s := answer.New(&fakeSearcher{}, gen, nil, nil, answer.Config{}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Stream(ctx, request())

	first := <-ch
	assert.Equal(t, "first", first.Content)
	cancel()

	select {
	case <-gen.stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("provider kept streaming after cancel")
	}

	for ev := range ch {
		assert.NotEqual(t, stream.KindDone, ev.Kind)
	}
}
