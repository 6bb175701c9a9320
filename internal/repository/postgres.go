package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/transitdesk/be-concessions/internal/database"
	"github.com/transitdesk/be-concessions/internal/domain"
	"github.com/transitdesk/be-concessions/internal/errors"
)

// PostgresStore is the PostgreSQL ApplicationStore.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `
	id, student_id, college_id, depot_id,
	start_point, end_point, is_renewal,
	status, rejection_reason,
	payment_transaction_id, payment_transaction_date,
	payment_account_holder, payment_amount, payment_method,
	application_date,
	college_verified_at, depot_approved_at, payment_verified_at, issued_at,
	created_at, updated_at`

// Create inserts a new application.
func (r *PostgresStore) Create(ctx context.Context, app *domain.Application) error {
	query := `
		INSERT INTO applications (id, student_id, college_id, depot_id,
		                          start_point, end_point, is_renewal,
		                          status, application_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::application_status, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		app.ID,
		app.StudentID,
		app.CollegeID,
		app.DepotID,
		app.StartPoint,
		app.EndPoint,
		app.IsRenewal,
		app.Status,
		app.ApplicationDate,
	).Scan(&app.CreatedAt, &app.UpdatedAt)

	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create application")
	}
	return nil
}

// GetByID retrieves an application by ID.
func (r *PostgresStore) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get application")
	}
	return app, nil
}

// List retrieves applications with filtering and pagination.
func (r *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*domain.Application, int64, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM applications WHERE 1=1`

	args := []any{}
	argCount := 1

	addFilter := func(clause string, value any) {
		cond := fmt.Sprintf(clause, argCount)
		query += cond
		countQuery += cond
		args = append(args, value)
		argCount++
	}

	if filter.Status != nil {
		addFilter(" AND status = $%d::application_status", *filter.Status)
	}
	if filter.StudentID != nil {
		addFilter(" AND student_id = $%d", *filter.StudentID)
	}
	if filter.CollegeID != nil {
		addFilter(" AND college_id = $%d", *filter.CollegeID)
	}
	if filter.DepotID != nil {
		addFilter(" AND depot_id = $%d", *filter.DepotID)
	}

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count applications")
	}

	query += " ORDER BY application_date DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list applications")
	}
	defer rows.Close()

	apps := make([]*domain.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan application")
		}
		apps = append(apps, app)
	}
	return apps, total, nil
}

// ApplyTransition persists a transitioned application in one atomic UPDATE.
// The WHERE clause pins the status the caller loaded, so a concurrent writer
// that moved the record first makes this a zero-row update, reported as
// CONFLICT.
func (r *PostgresStore) ApplyTransition(ctx context.Context, app *domain.Application, expected domain.Status) error {
	query := `
		UPDATE applications
		SET status = $3::application_status,
		    rejection_reason = $4,
		    payment_transaction_id = $5,
		    payment_transaction_date = $6,
		    payment_account_holder = $7,
		    payment_amount = $8,
		    payment_method = $9,
		    college_verified_at = $10,
		    depot_approved_at = $11,
		    payment_verified_at = $12,
		    issued_at = $13,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2::application_status
		RETURNING updated_at
	`

	var txnID, txnDate, holder, method *string
	var amount *int64
	if app.Payment != nil {
		txnID = &app.Payment.TransactionID
		txnDate = &app.Payment.TransactionDate
		holder = &app.Payment.AccountHolder
		amount = &app.Payment.Amount
		method = &app.Payment.PaymentMethod
	}

	err := r.db.QueryRow(ctx, query,
		app.ID,
		expected,
		app.Status,
		app.RejectionReason,
		txnID,
		txnDate,
		holder,
		amount,
		method,
		app.CollegeVerifiedAt,
		app.DepotApprovedAt,
		app.PaymentVerifiedAt,
		app.IssuedAt,
	).Scan(&app.UpdatedAt)

	if err == pgx.ErrNoRows {
		// Row missing entirely vs. moved by a concurrent writer.
		var current domain.Status
		probeErr := r.db.QueryRow(ctx, `SELECT status FROM applications WHERE id = $1`, app.ID).Scan(&current)
		if probeErr == pgx.ErrNoRows {
			return errors.NotFound("application", app.ID)
		}
		if probeErr != nil {
			return errors.Wrap(probeErr, errors.ErrCodeInternal, "failed to re-read application status")
		}
		return errors.Conflict(fmt.Sprintf(
			"application %s was modified concurrently (status is now '%s')", app.ID, current))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply transition")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(sc rowScanner) (*domain.Application, error) {
	app := &domain.Application{}
	var txnID, txnDate, holder, method *string
	var amount *int64

	err := sc.Scan(
		&app.ID,
		&app.StudentID,
		&app.CollegeID,
		&app.DepotID,
		&app.StartPoint,
		&app.EndPoint,
		&app.IsRenewal,
		&app.Status,
		&app.RejectionReason,
		&txnID,
		&txnDate,
		&holder,
		&amount,
		&method,
		&app.ApplicationDate,
		&app.CollegeVerifiedAt,
		&app.DepotApprovedAt,
		&app.PaymentVerifiedAt,
		&app.IssuedAt,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if txnID != nil {
		app.Payment = &domain.PaymentDetails{
			TransactionID:   *txnID,
			TransactionDate: deref(txnDate),
			AccountHolder:   deref(holder),
			PaymentMethod:   deref(method),
		}
		if amount != nil {
			app.Payment.Amount = *amount
		}
	}

	return app, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
