package domain

import (
	"context"
	"time"
)

// SourceRecord is one normalized unit of text extracted from an input file.
type SourceRecord struct {
	Text   string
	Source string
}

// SearchHit is a document text returned by a similarity search together with
// its distance to the query (lower is closer).
type SearchHit struct {
	Text     string
	Distance float64
}

// AnswerRecord is one completed question/answer cycle.
type AnswerRecord struct {
	Question   string
	Answer     string
	LatencyMS  float64
	Confidence float64
	CreatedAt  time.Time
}

// AlertEvent is raised when retrieval confidence is high but the generated
// answer reads like a refusal.
type AlertEvent struct {
	Question   string
	Answer     string
	Confidence float64
	RaisedAt   time.Time
}

// Embedder converts free text into numeric vectors.
// Dimension may be zero until the first call for remote models.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex persists texts as embeddings and supports nearest-neighbour search.
type VectorIndex interface {
	Add(ctx context.Context, texts []string) error
	SearchWithDistance(ctx context.Context, query string, k int) ([]SearchHit, error)
}

// Generator produces a natural-language answer conditioned on context documents.
type Generator interface {
	Generate(ctx context.Context, question string, contextDocs []string) (string, error)
}

// Notifier delivers an alert to an operator.
type Notifier interface {
	Notify(ctx context.Context, event AlertEvent) error
}

// AuditStore is the subset of relational persistence the pipeline writes to.
type AuditStore interface {
	CreateDocument(ctx context.Context, name, path string, status DocumentStatus) (Document, error)
	UpdateDocumentStatus(ctx context.Context, id int64, status DocumentStatus) error
	InsertChunks(ctx context.Context, documentID int64, texts []string) error
	SaveAnswer(ctx context.Context, rec AnswerRecord) error
	AppendLog(ctx context.Context, entry LogEntry) error
}
