package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchrag/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.CreateDocument(context.Background(), "a.csv", "/tmp/a.csv", domain.StatusPending)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	docs, err := s.ListDocuments(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, path, s.Path())
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc, err := s.CreateDocument(ctx, "catalogue.csv", "/data/catalogue.csv", domain.StatusPending)
	require.NoError(t, err)
	assert.NotZero(t, doc.ID)
	assert.Equal(t, domain.StatusPending, doc.Status)
	assert.False(t, doc.UploadedAt.IsZero())

	require.NoError(t, s.UpdateDocumentStatus(ctx, doc.ID, domain.StatusProcessed))
	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, got.Status)
	assert.Equal(t, "catalogue.csv", got.FileName)

	_, err = s.GetDocument(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.UpdateDocumentStatus(ctx, 9999, domain.StatusError), domain.ErrNotFound)

	_, err = s.CreateDocument(ctx, "faq_100%.txt", "/data/faq.txt", domain.StatusPending)
	require.NoError(t, err)

	docs, err := s.ListDocuments(ctx, "CATALOGUE")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	docs, err = s.ListDocuments(ctx, "%")
	require.NoError(t, err)
	require.Len(t, docs, 1, "wildcards are literal")
	assert.Equal(t, "faq_100%.txt", docs[0].FileName)

	docs, err = s.ListDocuments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	doc, err := s.CreateDocument(ctx, "catalogue.csv", "/data/catalogue.csv", domain.StatusProcessing)
	require.NoError(t, err)

	texts := []string{"first", "second", "third"}
	require.NoError(t, s.InsertChunks(ctx, doc.ID, texts))
	require.NoError(t, s.InsertChunks(ctx, doc.ID, nil))

	chunks, err := s.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, texts[i], c.Content)
		assert.Equal(t, doc.ID, c.DocumentID)
	}

	require.NoError(t, s.InsertChunks(ctx, doc.ID, texts))
	n, err := s.CountChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, n, "no deduplication")

	err = s.InsertChunks(ctx, 4242, texts)
	assert.ErrorIs(t, err, domain.ErrPersistence, "unknown document violates the foreign key")
	n, err = s.CountChunks(ctx, 4242)
	require.NoError(t, err)
	assert.Zero(t, n, "failed batch is rolled back")
}

func TestAnswersAndLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveAnswer(ctx, domain.AnswerRecord{
		Question: "¿Horario?", Answer: "De 10 a 20.", LatencyMS: 120, Confidence: 0.8,
	}))
	require.NoError(t, s.SaveAnswer(ctx, domain.AnswerRecord{
		Question: "¿Seiko?", Answer: "Sí.", LatencyMS: 80, Confidence: 0.6,
		CreatedAt: time.Now().Add(time.Second),
	}))

	answers, err := s.ListAnswers(ctx, AnswerFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "¿Seiko?", answers[0].Question)
	assert.InDelta(t, 80, answers[0].LatencyMS, 1e-9)

	answers, err = s.ListAnswers(ctx, AnswerFilter{Query: "10 A 20"})
	require.NoError(t, err)
	require.Len(t, answers, 1, "answer text matches ignoring case")
	assert.Equal(t, "¿Horario?", answers[0].Question)

	answers, err = s.ListAnswers(ctx, AnswerFilter{Query: "seiko"})
	require.NoError(t, err)
	require.Len(t, answers, 1, "question text matches")
	assert.Equal(t, "Sí.", answers[0].Answer)

	answers, err = s.ListAnswers(ctx, AnswerFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, answers, 1)

	metrics, err := s.ListMetrics(ctx, 0)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.InDelta(t, 0.6, metrics[0].Confidence, 1e-9)
	assert.NotZero(t, metrics[0].QueryID)
	assert.False(t, metrics[0].CreatedAt.IsZero())

	metrics, err = s.ListMetrics(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, metrics, 1)

	doc, err := s.CreateDocument(ctx, "a.csv", "/a.csv", domain.StatusPending)
	require.NoError(t, err)
	require.NoError(t, s.AppendLog(ctx, domain.LogEntry{DocumentID: &doc.ID, Action: domain.ActionProcessedOK, Details: "3 records"}))
	require.NoError(t, s.AppendLog(ctx, domain.LogEntry{Action: domain.ActionErrorRAG, Details: "timeout"}))

	logs, err := s.ListLogs(ctx, LogFilter{})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = s.ListLogs(ctx, LogFilter{Action: domain.ActionProcessedOK})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].DocumentID)
	assert.Equal(t, doc.ID, *logs[0].DocumentID)
	assert.Equal(t, "3 records", logs[0].Details)

	logs, err = s.ListLogs(ctx, LogFilter{Action: domain.ActionErrorRAG})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].DocumentID)

	t.Run("Free text searches action, details and file name", func(t *testing.T) {
		logs, err := s.ListLogs(ctx, LogFilter{Query: "a.csv"})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, domain.ActionProcessedOK, logs[0].Action)

		logs, err = s.ListLogs(ctx, LogFilter{Query: "TIMEOUT"})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, domain.ActionErrorRAG, logs[0].Action)

		logs, err = s.ListLogs(ctx, LogFilter{Query: "rag"})
		require.NoError(t, err)
		assert.Len(t, logs, 1)

		logs, err = s.ListLogs(ctx, LogFilter{Action: domain.ActionErrorRAG, Query: "records"})
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, err := s.Stats(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	for _, status := range []domain.DocumentStatus{domain.StatusPending, domain.StatusProcessed, domain.StatusProcessed, domain.StatusLoaded, domain.StatusError} {
		_, err := s.CreateDocument(ctx, "f.csv", "/f.csv", status)
		require.NoError(t, err)
	}
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveAnswer(ctx, domain.AnswerRecord{Question: "old", Answer: "a", LatencyMS: 300, Confidence: 0.2, CreatedAt: now.AddDate(0, 0, -1)}))
	require.NoError(t, s.SaveAnswer(ctx, domain.AnswerRecord{Question: "new", Answer: "b", LatencyMS: 100, Confidence: 0.6, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.AppendLog(ctx, domain.LogEntry{Action: domain.ActionErrorRAG}))
	require.NoError(t, s.AppendLog(ctx, domain.LogEntry{Action: domain.ActionAlertRAG}))

	st, err = s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Documents)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 2, st.Processed)
	assert.Equal(t, 1, st.Loaded)
	assert.Equal(t, 1, st.Errored)
	assert.Equal(t, 2, st.Queries)
	assert.Equal(t, 1, st.QueriesToday)
	assert.InDelta(t, 200, st.AvgLatencyMS, 1e-9)
	assert.InDelta(t, 100, st.MinLatencyMS, 1e-9)
	assert.InDelta(t, 300, st.MaxLatencyMS, 1e-9)
	assert.InDelta(t, 0.4, st.AvgConfidence, 1e-9)
	assert.Equal(t, 1, st.RAGErrors)
	assert.Equal(t, 1, st.AlertsRaised)
}
