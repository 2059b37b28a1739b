package models

import "time"

type IndexState string

const (
	StatePending    IndexState = "pending"
	StateProcessing IndexState = "processing"
	StateCompleted  IndexState = "completed"
	StateFailed     IndexState = "failed"
)

// IndexingStatus is the single, overwritten record tracking one document's
// way through the indexing pipeline.
type IndexingStatus struct {
	DocumentID      string     `json:"document_id"`
	OrganizationID  string     `json:"organization_id"`
	Status          IndexState `json:"status"`
	Progress        int        `json:"progress"`
	TotalChunks     int        `json:"total_chunks"`
	ProcessedChunks int        `json:"processed_chunks"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Terminal reports whether the pipeline has finished with this document.
func (s IndexingStatus) Terminal() bool {
	return s.Status == StateCompleted || s.Status == StateFailed
}
