package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/tracing"
)

// PostgresRepository is a Repository backed by the idempotency_keys table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Get retrieves the user's record for key.
func (r *PostgresRepository) Get(ctx context.Context, userID, key string) (_ *Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "idempotency_keys", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var rec Record
	err = r.db.QueryRowContext(ctx, `
		SELECT user_id, key, method, route, created_at, response_hash, status, response_body, response_status_code
		FROM idempotency_keys WHERE user_id = $1 AND key = $2`, userID, key).
		Scan(&rec.UserID, &rec.Key, &rec.Method, &rec.Route, &rec.CreatedAt,
			&rec.ResponseHash, &rec.Status, &rec.ResponseBody, &rec.ResponseStatusCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idempotency key: %w", err)
	}
	return &rec, nil
}

// Store saves a new record.
func (r *PostgresRepository) Store(ctx context.Context, record *Record) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "idempotency_keys", tracing.DBOperationInsert)
	defer func() { end(err) }()

	if err := ValidateKey(record.Key); err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (user_id, key, method, route, response_hash, status, response_body, response_status_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.UserID, record.Key, record.Method, record.Route, record.ResponseHash,
		record.Status, record.ResponseBody, record.ResponseStatusCode)
	if db.HasCode(err, db.CodeUniqueViolation) {
		return ErrKeyExists
	}
	if err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// DeleteOlderThan removes records older than age.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, age time.Duration) (_ int64, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "idempotency_keys", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to delete idempotency keys: %w", err)
	}
	return res.RowsAffected()
}
