package models

import "errors"

var (
	ErrExtraction        = errors.New("text extraction failed")
	ErrEmbeddingProvider = errors.New("embedding provider error")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrLexicalProvider   = errors.New("lexical search provider error")
	ErrLLMProvider       = errors.New("llm provider error")
	ErrNotFound          = errors.New("not found")
	ErrStreamActive      = errors.New("a stream is already active")
	ErrEmptyQuery        = errors.New("empty query")
	ErrMissingOrg        = errors.New("organization id is required")
)
