// Package chat persists session question/answer history.
package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"askdocs/internal/retrieval"
)

// PostgresRepo implements retrieval.HistoryStore on Postgres.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, turn retrieval.Turn) error {
	sources, err := json.Marshal(turn.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	query := `INSERT INTO chat_history (session_id, query, answer, sources, status, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, query,
		turn.SessionID, turn.Query, turn.Answer, sources, turn.Status, turn.LatencyMs, turn.CreatedAt)
	return err
}

// History returns up to limit turns for the session, oldest first. The query
// reads newest-first to honor the limit, then the slice is reversed.
func (r *PostgresRepo) History(ctx context.Context, sessionID string, limit int) ([]retrieval.Turn, error) {
	query := `SELECT session_id, query, answer, sources, status, latency_ms, created_at
		FROM chat_history WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []retrieval.Turn
	for rows.Next() {
		var turn retrieval.Turn
		var sources []byte
		if err := rows.Scan(&turn.SessionID, &turn.Query, &turn.Answer, &sources,
			&turn.Status, &turn.LatencyMs, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &turn.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal sources: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
