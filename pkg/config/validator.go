package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// LLM
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.CostPerToken < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.cost_per_token",
			Message: "cost_per_token must not be negative",
		})
	}

	// Embedding
	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 100 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be between 1 and 100",
		})
	}

	if c.Embedding.RequestsPerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "embedding.requests_per_second",
			Message: "requests_per_second must be positive",
		})
	}

	// Database
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Search
	if c.Search.MaxLimit < 1 || c.Search.MaxLimit > 100 {
		errors = append(errors, ValidationError{
			Field:   "search.max_limit",
			Message: "max_limit must be between 1 and 100",
		})
	}

	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxLimit {
		errors = append(errors, ValidationError{
			Field:   "search.default_limit",
			Message: "default_limit must be positive and not above max_limit",
		})
	}

	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "search.similarity_threshold",
			Message: "similarity_threshold must be between 0 and 1",
		})
	}

	if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "search.weights",
			Message: "branch weights must not be negative",
		})
	}

	// Chunking
	if c.Chunking.MinLength < 1 || c.Chunking.MaxSize < c.Chunking.MinLength {
		errors = append(errors, ValidationError{
			Field:   "chunking.max_size",
			Message: "max_size must be at least min_length",
		})
	}

	return errors
}
