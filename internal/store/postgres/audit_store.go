package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// AuditStore appends audit events tagged with the id of the current run.
type AuditStore struct {
	pool  *pgxpool.Pool
	runID string
}

// NewAuditStore creates an AuditStore writing under runID.
func NewAuditStore(c *Client, runID string) *AuditStore {
	return &AuditStore{pool: c.pool, runID: runID}
}

// Log appends one event. detail is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	row := make(map[string]any, len(detail)+1)
	for k, v := range detail {
		row[k] = v
	}
	row["run_id"] = s.runID
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const q = `INSERT INTO audit_log (run_id, event, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, q, s.runID, event, raw); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// Recent returns the newest limit entries across all runs, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, event, detail, created_at FROM audit_log ORDER BY id DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent audit entries: %w", err)
	}
	return entries, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
