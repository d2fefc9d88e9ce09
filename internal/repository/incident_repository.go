package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Resolution errors surfaced to the service layer.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrResolvedByOther  = errors.New("incident already resolved by another admin")
)

// IncidentRepository handles security incident data access.
type IncidentRepository struct {
	pool *pgxpool.Pool
}

// NewIncidentRepository creates a new IncidentRepository.
func NewIncidentRepository(pool *pgxpool.Pool) *IncidentRepository {
	return &IncidentRepository{pool: pool}
}

// Insert persists a single incident.
func (r *IncidentRepository) Insert(ctx context.Context, inc *model.SecurityIncident) error {
	metadata, err := json.Marshal(inc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO security_incidents (id, session_id, incident_type, severity, description, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		inc.ID, inc.SessionID, inc.Type, inc.Severity, inc.Description, metadata, inc.CreatedAt)
	return err
}

// BulkInsert persists a batch of incidents with COPY.
func (r *IncidentRepository) BulkInsert(ctx context.Context, batch []*model.SecurityIncident) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, inc := range batch {
		metadata, err := json.Marshal(inc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		rows = append(rows, []interface{}{
			inc.ID, inc.SessionID, string(inc.Type), string(inc.Severity),
			inc.Description, metadata, inc.CreatedAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"security_incidents"},
		[]string{"id", "session_id", "incident_type", "severity", "description", "metadata", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListBySession retrieves all incidents for a session, newest first.
func (r *IncidentRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.SecurityIncident, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, incident_type, severity, description, metadata,
		        is_resolved, resolved_by, resolved_at, created_at
		 FROM security_incidents
		 WHERE session_id = $1
		 ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []model.SecurityIncident
	for rows.Next() {
		var inc model.SecurityIncident
		var metadata []byte
		if err := rows.Scan(
			&inc.ID, &inc.SessionID, &inc.Type, &inc.Severity, &inc.Description,
			&metadata, &inc.IsResolved, &inc.ResolvedBy, &inc.ResolvedAt, &inc.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &inc.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// CountUnresolved returns the number of open incidents across all sessions.
func (r *IncidentRepository) CountUnresolved(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM security_incidents WHERE is_resolved = FALSE`).Scan(&n)
	return n, err
}

// Resolve marks an incident resolved by adminID, stamping resolved_at
// server-side. Re-resolving by the same admin is a no-op; resolved_by is
// never overwritten once set.
func (r *IncidentRepository) Resolve(ctx context.Context, id uuid.UUID, adminID int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE security_incidents
		 SET is_resolved = TRUE,
		     resolved_by = $2,
		     resolved_at = COALESCE(resolved_at, NOW())
		 WHERE id = $1 AND (is_resolved = FALSE OR resolved_by = $2)`,
		id, adminID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM security_incidents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrIncidentNotFound
		}
		return ErrResolvedByOther
	}
	return nil
}
