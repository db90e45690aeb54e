// Package pgvector stores vectors in PostgreSQL using the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"watchrag/internal/domain"
	"watchrag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Config struct {
	DSN   string
	Table string
}

// Storage is a PostgreSQL table with a vector column searched by L2 distance.
type Storage struct {
	db    *sql.DB
	table string
}

// Open connects to PostgreSQL. The table is created by Init.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	table := cfg.Table
	if table == "" {
		table = "watchrag_vectors"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return &Storage{db: db, table: table}, nil
}

// Init enables the extension and creates the table for the given dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         UUID PRIMARY KEY,
			content    TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, pq.QuoteIdentifier(s.table), dimension))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	var stored int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT vector_dims(embedding) FROM %s LIMIT 1`, pq.QuoteIdentifier(s.table))).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read dimension: %w", err)
	}
	if stored != 0 && stored != dimension {
		return fmt.Errorf("table %s has dimension %d, embedder produces %d", s.table, stored, dimension)
	}
	return nil
}

// Upsert inserts points in one transaction. Existing ids are left untouched.
func (s *Storage) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, content, embedding) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		pq.QuoteIdentifier(s.table)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Text, pgvector.NewVector(p.Vector)); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Search orders rows by L2 distance to vector.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	hits := []domain.SearchHit{}
	if topK <= 0 {
		return hits, nil
	}
	var exists sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, s.table).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up table: %w", err)
	}
	if !exists.Valid {
		return hits, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT content, embedding <-> $1 AS distance FROM %s ORDER BY distance, created_at LIMIT $2`,
		pq.QuoteIdentifier(s.table)), pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(&h.Text, &h.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}
	return hits, nil
}

func (s *Storage) Close() error { return s.db.Close() }
