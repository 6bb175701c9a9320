package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/transitdesk/be-concessions/internal/database"
	"github.com/transitdesk/be-concessions/internal/errors"
)

// PostgresHistoryStore appends and reads status audit entries. The table has
// a delete-prevention trigger, so Append is the only mutation exposed.
type PostgresHistoryStore struct {
	db *database.DB
}

// NewPostgresHistoryStore creates a new PostgresHistoryStore.
func NewPostgresHistoryStore(db *database.DB) *PostgresHistoryStore {
	return &PostgresHistoryStore{db: db}
}

// Append inserts one history entry.
func (r *PostgresHistoryStore) Append(ctx context.Context, entry *StatusHistoryEntry) error {
	query := `
		INSERT INTO application_status_history
		    (application_id, actor_role, actor_id,
		     status_before, status_after, reason)
		VALUES ($1, $2, $3, $4::application_status, $5::application_status, $6)
		RETURNING id, recorded_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.ApplicationID,
		entry.ActorRole,
		entry.ActorID,
		entry.StatusBefore,
		entry.StatusAfter,
		entry.Reason,
	).Scan(&entry.ID, &entry.RecordedAt)

	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append status history")
	}
	return nil
}

// GetByApplicationID returns the full audit trail for an application ordered
// oldest-first.
func (r *PostgresHistoryStore) GetByApplicationID(ctx context.Context, applicationID string) ([]*StatusHistoryEntry, error) {
	query := `
		SELECT id, application_id, actor_role, actor_id,
		       status_before, status_after, reason, recorded_at
		FROM application_status_history
		WHERE application_id = $1
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get status history")
	}
	defer rows.Close()

	return scanHistoryRows(rows)
}

func scanHistoryRows(rows pgx.Rows) ([]*StatusHistoryEntry, error) {
	entries := make([]*StatusHistoryEntry, 0)
	for rows.Next() {
		entry := &StatusHistoryEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.ApplicationID,
			&entry.ActorRole,
			&entry.ActorID,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&entry.Reason,
			&entry.RecordedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan history entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
