package audit

import (
	"context"
	"database/sql"
	"time"

	"watchrag/internal/domain"
)

// Stats aggregates the figures shown on the operator dashboard.
type Stats struct {
	Documents     int
	Pending       int
	Processing    int
	Processed     int
	Loaded        int
	Errored       int
	Chunks        int
	Queries       int
	QueriesToday  int
	AvgLatencyMS  float64
	MinLatencyMS  float64
	MaxLatencyMS  float64
	AvgConfidence float64
	RAGErrors     int
	AlertsRaised  int
}

// Stats computes dashboard aggregates. "Today" starts at midnight in the
// location of now.
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return Stats{}, persistence("stats", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return Stats{}, persistence("stats", err)
		}
		st.Documents += n
		switch domain.DocumentStatus(status) {
		case domain.StatusPending:
			st.Pending = n
		case domain.StatusProcessing:
			st.Processing = n
		case domain.StatusProcessed:
			st.Processed = n
		case domain.StatusLoaded:
			st.Loaded = n
		case domain.StatusError:
			st.Errored = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, persistence("stats", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return Stats{}, persistence("stats", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM queries),
			(SELECT COUNT(*) FROM queries WHERE created_at >= ?)`,
		midnight.UTC().Format(timeLayout)).Scan(&st.Queries, &st.QueriesToday)
	if err != nil {
		return Stats{}, persistence("stats", err)
	}

	var avgLat, minLat, maxLat, avgConf sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(latency_ms), MIN(latency_ms), MAX(latency_ms), AVG(confidence) FROM metrics`).
		Scan(&avgLat, &minLat, &maxLat, &avgConf)
	if err != nil {
		return Stats{}, persistence("stats", err)
	}
	st.AvgLatencyMS = avgLat.Float64
	st.MinLatencyMS = minLat.Float64
	st.MaxLatencyMS = maxLat.Float64
	st.AvgConfidence = avgConf.Float64

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN action = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = ? THEN 1 ELSE 0 END), 0)
		FROM logs`, domain.ActionErrorRAG, domain.ActionAlertRAG).Scan(&st.RAGErrors, &st.AlertsRaised)
	if err != nil {
		return Stats{}, persistence("stats", err)
	}
	return st, nil
}
