package domain

import "time"

// DocumentStatus is the ingestion state of an uploaded source document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "Pending"
	StatusProcessing DocumentStatus = "Processing"
	StatusProcessed  DocumentStatus = "Processed"
	// StatusLoaded is the success state reached through the upload path.
	StatusLoaded DocumentStatus = "Loaded"
	StatusError  DocumentStatus = "Error"
)

// Terminal reports whether no further transition is expected from s.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusProcessed, StatusLoaded, StatusError:
		return true
	}
	return false
}

// Document is a source file registered for ingestion.
type Document struct {
	ID         int64
	FileName   string
	Path       string
	Status     DocumentStatus
	UploadedAt time.Time
}

// Chunk is a persisted copy of one indexed record, kept for inspection.
type Chunk struct {
	ID         int64
	DocumentID int64
	Content    string
}

// Action tags used on log entries.
const (
	ActionProcessedOK = "PROCESSED_OK"
	ActionErrorAdmin  = "ERROR_ADMIN"
	ActionUploadOK    = "UPLOAD_OK"
	ActionUploadError = "UPLOAD_ERROR"
	ActionErrorRAG    = "ERROR_RAG"
	ActionAlertRAG    = "ALERT_RAG"
)

// LogEntry is an audit log line keyed by action tag.
type LogEntry struct {
	ID         int64
	DocumentID *int64
	Action     string
	Details    string
	CreatedAt  time.Time
}
