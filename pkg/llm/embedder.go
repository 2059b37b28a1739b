package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/ragcore/internal/models"
	"golang.org/x/time/rate"
)

const DefaultBatchSize = 100

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Model             string
	BaseURL           string // Ollama server URL
	BatchSize         int
	RequestsPerSecond float64
}

// Embedder calls the embedding provider in order-preserving batches.
type Embedder struct {
	config  EmbedderConfig
	client  embeddings.EmbedderClient
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

func NewEmbedderWithConfig(config EmbedderConfig, log logrus.FieldLogger) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	client, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return NewEmbedder(client, config, log), nil
}

// NewEmbedder wraps an existing provider client.
func NewEmbedder(client embeddings.EmbedderClient, config EmbedderConfig, log logrus.FieldLogger) *Embedder {
	if config.BatchSize <= 0 || config.BatchSize > DefaultBatchSize {
		config.BatchSize = DefaultBatchSize
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// EmbedDocuments returns one vector per input text, in input order. Batches
// are sent sequentially; any provider failure fails the whole call.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		out, err := e.client.CreateEmbedding(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d: %v", models.ErrEmbeddingProvider, start/e.config.BatchSize, err)
		}
		if len(out) != len(batch) {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs",
				models.ErrEmbeddingProvider, len(out), len(batch))
		}

		e.log.WithFields(logrus.Fields{
			"batch": start / e.config.BatchSize,
			"size":  len(batch),
		}).Debug("embedding batch done")

		vectors = append(vectors, out...)
	}

	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CosineSimilarity is dot(v1,v2) / (|v1|*|v2|). A zero vector has
// similarity 0 with everything.
func CosineSimilarity(v1, v2 []float32) (float64, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d != %d", models.ErrDimensionMismatch, len(v1), len(v2))
	}

	var dot, norm1, norm2 float64
	for i := range v1 {
		a, b := float64(v1[i]), float64(v2[i])
		dot += a * b
		norm1 += a * a
		norm2 += b * b
	}

	if norm1 == 0 || norm2 == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(norm1) * math.Sqrt(norm2)), nil
}
