// Package sqlite stores vectors as float32 blobs in a local SQLite file and
// searches them by brute-force L2 distance.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"watchrag/internal/domain"
	"watchrag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS vectors (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	dimension  INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	created_at TEXT NOT NULL
)`

// Storage is a SQLite-backed vector store.
type Storage struct {
	db   *sql.DB
	path string
}

// Open opens or creates the vector database at path.
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vectors table: %w", err)
	}
	return &Storage{db: db, path: path}, nil
}

// Init checks that stored vectors, if any, have the given dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	var stored sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM vectors LIMIT 1`).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read dimension: %w", err)
	}
	if stored.Valid && int(stored.Int64) != dimension {
		return fmt.Errorf("stored vectors have dimension %d, embedder produces %d", stored.Int64, dimension)
	}
	return nil
}

// Upsert inserts points in a single transaction.
func (s *Storage) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO vectors (id, content, dimension, vector, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, p := range points {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Text, len(p.Vector), vectorToBlob(p.Vector), now); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Search scans every stored vector and keeps the topK closest.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content, dimension, vector FROM vectors ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	nearest := vectorstore.NewNearest(topK)
	for rows.Next() {
		var (
			content   string
			dimension int
			blob      []byte
		)
		if err := rows.Scan(&content, &dimension, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		if dimension != len(vector) {
			return nil, fmt.Errorf("vector dimension mismatch: stored %d, query %d", dimension, len(vector))
		}
		stored, err := blobToVector(blob)
		if err != nil {
			return nil, err
		}
		nearest.Offer(content, vectorstore.L2(stored, vector))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}
	return nearest.Hits(), nil
}

// Count returns the number of stored vectors.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
	return n, err
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

// Close closes the database connection.
func (s *Storage) Close() error { return s.db.Close() }

func vectorToBlob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func blobToVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
