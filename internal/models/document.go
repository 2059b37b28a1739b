package models

import "time"

// Chunk is one retrievable unit of an indexed document. Chunks are immutable
// once written and always belong to exactly one organization.
type Chunk struct {
	ID             string
	DocumentID     string
	OrganizationID string
	Title          string
	Content        string
	Embedding      []float32
	ParagraphIndex int
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}

// ExtractionResult is the plain text pulled out of an uploaded binary.
type ExtractionResult struct {
	Text     string
	Pages    int
	Metadata ExtractionMetadata
}

type ExtractionMetadata struct {
	Title    string   `json:"title,omitempty"`
	Author   string   `json:"author,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// SearchResult is a ranked chunk. Score is a fused, unbounded non-negative
// value, not a probability.
type SearchResult struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Title      string                 `json:"title"`
	Content    string                 `json:"content"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// SearchQuery is the input of a hybrid search.
type SearchQuery struct {
	Text           string `json:"query"`
	OrganizationID string `json:"organization_id"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// Source is a citation attached to a generated answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Usage is the token accounting reported by the generative model.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the result of a single-shot answer.
type ChatResponse struct {
	Content string   `json:"content"`
	Sources []Source `json:"sources"`
	Usage   Usage    `json:"usage"`
}

// UsageRecord is one metered generation, emitted after the answer is returned.
type UsageRecord struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	TokensUsed     int       `json:"tokens_used"`
	APICalls       int       `json:"api_calls"`
	Cost           float64   `json:"cost"`
	Date           string    `json:"date"`
	RecordedAt     time.Time `json:"recorded_at"`
}
