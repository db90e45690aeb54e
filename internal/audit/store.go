// Package audit records documents, chunks, answers and log lines in SQLite.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"watchrag/internal/audit/migrations"
	"watchrag/internal/domain"
)

var _ domain.AuditStore = (*Store)(nil)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store is the SQLite audit database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the audit database at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

// ==================== Documents ====================

// CreateDocument inserts a document row and returns it with its id.
func (s *Store) CreateDocument(ctx context.Context, name, path string, status domain.DocumentStatus) (domain.Document, error) {
	ts := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (file_name, path, status, uploaded_at) VALUES (?, ?, ?, ?)`,
		name, path, string(status), ts)
	if err != nil {
		return domain.Document{}, persistence("create document", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Document{}, persistence("create document", err)
	}
	return domain.Document{ID: id, FileName: name, Path: path, Status: status, UploadedAt: parseTime(ts)}, nil
}

// UpdateDocumentStatus sets the status of document id.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status domain.DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return persistence("update document status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetDocument returns document id.
func (s *Store) GetDocument(ctx context.Context, id int64) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, path, status, uploaded_at FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, persistence("get document", err)
	}
	return doc, nil
}

// ListDocuments returns documents newest first. A non-empty nameFilter keeps
// only documents whose file name contains it, ignoring case.
func (s *Store) ListDocuments(ctx context.Context, nameFilter string) ([]domain.Document, error) {
	query := `SELECT id, file_name, path, status, uploaded_at FROM documents`
	var args []any
	if nameFilter != "" {
		query += ` WHERE file_name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(nameFilter)+"%")
	}
	query += ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list documents", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, persistence("list documents", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list documents", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (domain.Document, error) {
	var (
		doc        domain.Document
		status     string
		uploadedAt string
	)
	if err := r.Scan(&doc.ID, &doc.FileName, &doc.Path, &status, &uploadedAt); err != nil {
		return domain.Document{}, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.UploadedAt = parseTime(uploadedAt)
	return doc, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ==================== Chunks ====================

// InsertChunks stores texts for documentID in a single transaction.
func (s *Store) InsertChunks(ctx context.Context, documentID int64, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("insert chunks", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (document_id, content, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return persistence("insert chunks", err)
	}
	defer stmt.Close()

	ts := s.timestamp()
	for _, text := range texts {
		if _, err := stmt.ExecContext(ctx, documentID, text, ts); err != nil {
			return persistence("insert chunks", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistence("insert chunks", err)
	}
	return nil
}

// ListChunks returns the chunks of documentID in insertion order.
func (s *Store) ListChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, content FROM chunks WHERE document_id = ? ORDER BY id`, documentID)
	if err != nil {
		return nil, persistence("list chunks", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content); err != nil {
			return nil, persistence("list chunks", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list chunks", err)
	}
	return chunks, nil
}

// CountChunks returns the number of chunks stored for documentID.
func (s *Store) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&n)
	if err != nil {
		return 0, persistence("count chunks", err)
	}
	return n, nil
}

// ==================== Answers ====================

// SaveAnswer stores the question, the answer and their metrics together.
func (s *Store) SaveAnswer(ctx context.Context, rec domain.AnswerRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	ts := created.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("save answer", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO queries (question, answer, created_at) VALUES (?, ?, ?)`,
		rec.Question, rec.Answer, ts)
	if err != nil {
		return persistence("save answer", err)
	}
	queryID, err := res.LastInsertId()
	if err != nil {
		return persistence("save answer", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO metrics (query_id, latency_ms, confidence, created_at) VALUES (?, ?, ?, ?)`,
		queryID, rec.LatencyMS, rec.Confidence, ts)
	if err != nil {
		return persistence("save answer", err)
	}
	if err := tx.Commit(); err != nil {
		return persistence("save answer", err)
	}
	return nil
}

// DefaultListLimit caps listings when no limit is given.
const DefaultListLimit = 50

// AnswerFilter narrows ListAnswers.
type AnswerFilter struct {
	// Query keeps answers whose question or answer contains it, ignoring case.
	Query string
	Limit int
}

// ListAnswers returns answers with their metrics, newest first.
func (s *Store) ListAnswers(ctx context.Context, f AnswerFilter) ([]domain.AnswerRecord, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	query := `
		SELECT q.question, q.answer, m.latency_ms, m.confidence, q.created_at
		FROM queries q JOIN metrics m ON m.query_id = q.id`
	var args []any
	if f.Query != "" {
		pattern := "%" + escapeLike(f.Query) + "%"
		query += ` WHERE q.question LIKE ? ESCAPE '\' OR q.answer LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY q.created_at DESC, q.id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list answers", err)
	}
	defer rows.Close()

	var out []domain.AnswerRecord
	for rows.Next() {
		var (
			rec     domain.AnswerRecord
			created string
		)
		if err := rows.Scan(&rec.Question, &rec.Answer, &rec.LatencyMS, &rec.Confidence, &created); err != nil {
			return nil, persistence("list answers", err)
		}
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list answers", err)
	}
	return out, nil
}

// Metric is one latency/confidence row attached to a stored query.
type Metric struct {
	ID         int64
	QueryID    int64
	LatencyMS  float64
	Confidence float64
	CreatedAt  time.Time
}

// ListMetrics returns up to limit metric rows, newest first.
func (s *Store) ListMetrics(ctx context.Context, limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_id, latency_ms, confidence, created_at
		FROM metrics
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, persistence("list metrics", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var (
			m       Metric
			created string
		)
		if err := rows.Scan(&m.ID, &m.QueryID, &m.LatencyMS, &m.Confidence, &created); err != nil {
			return nil, persistence("list metrics", err)
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list metrics", err)
	}
	return out, nil
}

// ==================== Logs ====================

// AppendLog adds one log line.
func (s *Store) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var docID sql.NullInt64
	if entry.DocumentID != nil {
		docID = sql.NullInt64{Int64: *entry.DocumentID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (document_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		docID, entry.Action, entry.Details, created.UTC().Format(timeLayout))
	if err != nil {
		return persistence("append log", err)
	}
	return nil
}

// LogFilter narrows ListLogs.
type LogFilter struct {
	// Action keeps only lines with this exact tag.
	Action string
	// Query keeps lines whose action, details or document file name
	// contains it, ignoring case.
	Query string
}

// ListLogs returns log lines newest first.
func (s *Store) ListLogs(ctx context.Context, f LogFilter) ([]domain.LogEntry, error) {
	query := `
		SELECT l.id, l.document_id, l.action, l.details, l.created_at
		FROM logs l LEFT JOIN documents d ON d.id = l.document_id`
	var (
		where []string
		args  []any
	)
	if f.Action != "" {
		where = append(where, `l.action = ?`)
		args = append(args, f.Action)
	}
	if f.Query != "" {
		pattern := "%" + escapeLike(f.Query) + "%"
		where = append(where, `(l.action LIKE ? ESCAPE '\' OR l.details LIKE ? ESCAPE '\' OR d.file_name LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY l.created_at DESC, l.id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list logs", err)
	}
	defer rows.Close()

	var out []domain.LogEntry
	for rows.Next() {
		var (
			e       domain.LogEntry
			docID   sql.NullInt64
			created string
		)
		if err := rows.Scan(&e.ID, &docID, &e.Action, &e.Details, &created); err != nil {
			return nil, persistence("list logs", err)
		}
		if docID.Valid {
			id := docID.Int64
			e.DocumentID = &id
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list logs", err)
	}
	return out, nil
}
