// Package service orchestrates ingestion and question answering.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"watchrag/internal/alert"
	"watchrag/internal/batcher"
	"watchrag/internal/calibration"
	"watchrag/internal/domain"
	"watchrag/internal/extractor"
)

// AlertSink accepts alerts without blocking.
type AlertSink interface {
	Enqueue(event domain.AlertEvent) bool
}

// Progress receives batch progress during Process.
type Progress interface {
	Start(total int)
	Increment()
	Finish()
}

// Options tunes the pipeline.
type Options struct {
	TopK          int
	BatchSize     int
	AnswerTimeout time.Duration
	Fallback      string
}

// Dependencies are the collaborators shared by every request.
type Dependencies struct {
	Index      domain.VectorIndex
	Generator  domain.Generator
	Calibrator *calibration.Calibrator
	Detector   *alert.Detector
	Alerts     AlertSink
	Store      domain.AuditStore
	Log        *slog.Logger
}

// IngestReport summarizes one processed document.
type IngestReport struct {
	Document domain.Document
	Count    int
	Skipped  int
	Batches  int
}

// AnswerResult is what the customer sees plus bookkeeping for the caller.
type AnswerResult struct {
	Answer     string
	Confidence float64
	Latency    time.Duration
	Alerted    bool
	Failed     bool
}

type RAGService struct {
	Dependencies
	opts Options
	now  func() time.Time
}

func NewRAGService(deps Dependencies, opts Options) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = batcher.DefaultSize
	}
	if opts.AnswerTimeout <= 0 {
		opts.AnswerTimeout = 90 * time.Second
	}
	if opts.Fallback == "" {
		opts.Fallback = "Lo siento, tuve un problema interno al procesar tu solicitud."
	}
	if deps.Calibrator == nil {
		deps.Calibrator = calibration.New(calibration.DefaultScale)
	}
	if deps.Detector == nil {
		deps.Detector = alert.NewDetector(alert.DefaultThreshold, nil)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &RAGService{Dependencies: deps, opts: opts, now: time.Now}
}

// Register records path as a Pending document. Files the mode does not
// accept are rejected before anything is written.
func (s *RAGService) Register(ctx context.Context, path string, mode Mode) (domain.Document, error) {
	if !mode.Accepts(path) {
		return domain.Document{}, fmt.Errorf("%w: %s in %s mode", domain.ErrUnsupportedFormat, filepath.Base(path), mode)
	}
	doc, err := s.Store.CreateDocument(ctx, filepath.Base(path), path, domain.StatusPending)
	if err != nil {
		return domain.Document{}, err
	}
	s.Log.Debug("Registered document", slog.Int64("document_id", doc.ID), slog.String("file", doc.FileName))
	return doc, nil
}

// Ingest registers and processes path.
func (s *RAGService) Ingest(ctx context.Context, path string, mode Mode, progress Progress) (IngestReport, error) {
	doc, err := s.Register(ctx, path, mode)
	if err != nil {
		return IngestReport{}, err
	}
	return s.Process(ctx, doc, mode, progress)
}

// Process extracts doc, indexes its records batch by batch and stores them
// as chunks. On failure the document ends in Error and batches already
// indexed stay indexed.
func (s *RAGService) Process(ctx context.Context, doc domain.Document, mode Mode, progress Progress) (IngestReport, error) {
	report := IngestReport{Document: doc}
	log := s.Log.With(slog.Int64("document_id", doc.ID), slog.String("file", doc.FileName))

	if err := s.Store.UpdateDocumentStatus(ctx, doc.ID, domain.StatusProcessing); err != nil {
		return report, err
	}
	report.Document.Status = domain.StatusProcessing

	res, err := extractor.Extract(doc.Path)
	if err != nil {
		return s.fail(ctx, log, report, mode, err)
	}
	texts := res.Texts()
	report.Skipped = res.Skipped

	batches, err := batcher.Split(texts, s.opts.BatchSize)
	if err != nil {
		return s.fail(ctx, log, report, mode, err)
	}
	if progress != nil {
		progress.Start(batcher.Count(len(texts), s.opts.BatchSize))
		defer progress.Finish()
	}
	for batch := range batches {
		if err := s.Index.Add(ctx, batch); err != nil {
			return s.fail(ctx, log, report, mode, fmt.Errorf("batch %d: %w", report.Batches+1, err))
		}
		report.Batches++
		report.Count += len(batch)
		if progress != nil {
			progress.Increment()
		}
	}

	if err := s.Store.InsertChunks(ctx, doc.ID, texts); err != nil {
		return s.fail(ctx, log, report, mode, err)
	}
	status := mode.SuccessStatus()
	if err := s.Store.UpdateDocumentStatus(ctx, doc.ID, status); err != nil {
		return s.fail(ctx, log, report, mode, err)
	}
	report.Document.Status = status

	details := fmt.Sprintf("%d records indexed from %s", report.Count, doc.FileName)
	if report.Skipped > 0 {
		details += fmt.Sprintf(" (%d rows skipped)", report.Skipped)
	}
	s.appendLog(ctx, &doc.ID, mode.SuccessAction(), details)
	log.Info("Processed document",
		slog.Int("records", report.Count),
		slog.Int("batches", report.Batches),
		slog.Int("skipped", report.Skipped))
	return report, nil
}

func (s *RAGService) fail(ctx context.Context, log *slog.Logger, report IngestReport, mode Mode, cause error) (IngestReport, error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.Store.UpdateDocumentStatus(ctx, report.Document.ID, domain.StatusError); err != nil {
		log.Error("Failed to mark document as errored", slog.Any("error", err))
	} else {
		report.Document.Status = domain.StatusError
	}
	s.appendLog(ctx, &report.Document.ID, mode.ErrorAction(), cause.Error())
	log.Error("Failed to process document", slog.Any("error", cause), slog.Int("batches_indexed", report.Batches))
	return report, cause
}

// Answer retrieves context for question, generates a reply and scores it.
// The only error returned is ErrEmptyQuestion; every other failure yields
// the fallback message with Failed set.
func (s *RAGService) Answer(ctx context.Context, question string) (AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return AnswerResult{}, domain.ErrEmptyQuestion
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.AnswerTimeout)
	defer cancel()
	start := s.now()

	hits, err := s.Index.SearchWithDistance(ctx, question, s.opts.TopK)
	if err != nil {
		return s.answerFailed(ctx, question, start, err), nil
	}
	confidence := s.Calibrator.Confidence(hits)
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Text
		s.Log.Debug("Retrieved context",
			slog.Float64("score", s.Calibrator.Calibrate(h.Distance)),
			slog.String("text", preview(h.Text, 60)))
	}

	answer, err := s.Generator.Generate(ctx, question, docs)
	if err != nil {
		return s.answerFailed(ctx, question, start, err), nil
	}
	latency := s.now().Sub(start)
	result := AnswerResult{Answer: answer, Confidence: confidence, Latency: latency}

	persistCtx := context.WithoutCancel(ctx)
	if s.Detector.Suspicious(confidence, answer) {
		result.Alerted = true
		event := domain.AlertEvent{Question: question, Answer: answer, Confidence: confidence, RaisedAt: s.now()}
		queued := s.Alerts != nil && s.Alerts.Enqueue(event)
		s.appendLog(persistCtx, nil, domain.ActionAlertRAG,
			fmt.Sprintf("confidence %.2f, queued=%t: %s", confidence, queued, question))
	}

	err = s.Store.SaveAnswer(persistCtx, domain.AnswerRecord{
		Question:   question,
		Answer:     answer,
		LatencyMS:  float64(latency) / float64(time.Millisecond),
		Confidence: confidence,
		CreatedAt:  start,
	})
	if err != nil {
		s.Log.Warn("Failed to save answer", slog.Any("error", err))
	}
	s.Log.Info("Answered question",
		slog.Float64("confidence", confidence),
		slog.Duration("latency", latency),
		slog.Bool("alerted", result.Alerted))
	return result, nil
}

func (s *RAGService) answerFailed(ctx context.Context, question string, start time.Time, cause error) AnswerResult {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: %w", cause, ctx.Err())
	}
	s.Log.Error("Failed to answer question", slog.Any("error", cause))
	s.appendLog(context.WithoutCancel(ctx), nil, domain.ActionErrorRAG, fmt.Sprintf("%s: %v", question, cause))
	return AnswerResult{
		Answer:  s.opts.Fallback,
		Latency: s.now().Sub(start),
		Failed:  true,
	}
}

// appendLog is best effort.
func (s *RAGService) appendLog(ctx context.Context, documentID *int64, action, details string) {
	err := s.Store.AppendLog(ctx, domain.LogEntry{DocumentID: documentID, Action: action, Details: details, CreatedAt: s.now()})
	if err != nil {
		s.Log.Warn("Failed to append log", slog.String("action", action), slog.Any("error", err))
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
