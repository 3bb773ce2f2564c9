package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alcosklad/alcoapp-sub000/internal/domain"
)

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository создаёт PostgreSQL-журнал административных действий.
func NewAuditRepository(store *Store) domain.AuditRepository {
	return &auditRepository{db: store.DB()}
}

func (r *auditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, aggregate_type, aggregate_id, event_type, actor, reason, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, event.ID, event.AggregateType, event.AggregateID, event.Type, event.Actor, event.Reason, event.Occurred.UTC())
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, aggregateID string) ([]domain.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, actor, reason, occurred_at
		FROM audit_events
		WHERE aggregate_id = $1
		ORDER BY occurred_at, id
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID, &event.AggregateType, &event.AggregateID, &event.Type,
			&event.Actor, &event.Reason, &event.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Occurred = event.Occurred.UTC()
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return result, nil
}

var _ domain.AuditRepository = (*auditRepository)(nil)
