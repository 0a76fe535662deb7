package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/playbypost/internal/db"
	"github.com/onnwee/playbypost/internal/tracing"
)

// PostgresRepository stores audit logs in the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository over conn.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// chainLockKey serialises appends so each entry sees its true predecessor.
const chainLockKey = 7_451_002

// Log appends an entry, chaining it to the latest stored log.
func (r *PostgresRepository) Log(ctx context.Context, entry Entry) (_ *Log, err error) {
	if err := entry.validate(); err != nil {
		return nil, err
	}
	ctx, end := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationInsert)
	defer func() { end(err) }()

	log := newLog(entry)
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
			return fmt.Errorf("failed to lock audit chain: %w", err)
		}
		log.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

		prev, err := scanLog(tx.QueryRowContext(ctx, `SELECT `+logColumns+`
			FROM audit_logs ORDER BY seq DESC LIMIT 1`))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to read audit chain head: %w", err)
		default:
			log.PreviousHash = prev.Hash()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_logs (id, user_id, entity_type, entity_id, action, outcome, detail, request_id, previous_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			log.ID, log.UserID, log.EntityType, log.EntityID, log.Action, log.Outcome,
			log.Detail, log.RequestID, log.PreviousHash, log.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// QueryByEntity returns logs for one entity, newest first.
func (r *PostgresRepository) QueryByEntity(ctx context.Context, entityType, entityID string, limit int) (_ []*Log, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `SELECT ` + logColumns + ` FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY seq DESC`
	args := []any{entityType, entityID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

const logColumns = `id, user_id, entity_type, entity_id, action, outcome, detail, request_id, previous_hash, created_at`

func scanLog(row interface{ Scan(...any) error }) (*Log, error) {
	var l Log
	if err := row.Scan(&l.ID, &l.UserID, &l.EntityType, &l.EntityID, &l.Action, &l.Outcome,
		&l.Detail, &l.RequestID, &l.PreviousHash, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return &l, nil
}
