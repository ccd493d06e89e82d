package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"coursehub/backend/services/payments-service/internal/models"
)

// ErrTransactionNotFound indicates an unknown gateway reference.
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository persists payment transactions.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository returns repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new pending transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	const query = `
		INSERT INTO payment_transactions (user_id, course_id, gateway_reference, amount_minor, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		tx.UserID,
		tx.CourseID,
		tx.GatewayReference,
		tx.AmountMinor,
		tx.Currency,
		tx.Status,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
}

// GetByReference loads a transaction by its gateway reference.
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	const query = `
		SELECT id, user_id, course_id, gateway_reference, amount_minor, currency, status, gateway_payload, completed_at, created_at, updated_at
		FROM payment_transactions
		WHERE gateway_reference = $1
	`
	var tx models.Transaction
	err := r.db.QueryRowContext(ctx, query, reference).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.CourseID,
		&tx.GatewayReference,
		&tx.AmountMinor,
		&tx.Currency,
		&tx.Status,
		&tx.GatewayPayload,
		&tx.CompletedAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FinalizeFromPending performs the single conditional write that moves a
// transaction out of pending. The WHERE status='pending' predicate makes the
// transition race-safe without external locks: exactly one concurrent caller
// sees one row affected and owns any follow-up side effect.
func (r *TransactionRepository) FinalizeFromPending(ctx context.Context, reference, status string, payload []byte, completedAt *time.Time) (bool, error) {
	const query = `
		UPDATE payment_transactions
		SET status = $2,
		    gateway_payload = $3,
		    completed_at = COALESCE($4, completed_at),
		    updated_at = NOW()
		WHERE gateway_reference = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, reference, status, payload, completedAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// SavePayload overwrites the stored gateway payload for audit without
// touching the status. Used on redundant deliveries for terminal rows.
func (r *TransactionRepository) SavePayload(ctx context.Context, reference string, payload []byte) error {
	const query = `
		UPDATE payment_transactions
		SET gateway_payload = $2,
		    updated_at = NOW()
		WHERE gateway_reference = $1
	`
	result, err := r.db.ExecContext(ctx, query, reference, payload)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListByUser returns latest transactions for user.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, user_id, course_id, gateway_reference, amount_minor, currency, status, gateway_payload, completed_at, created_at, updated_at
		FROM payment_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.CourseID,
			&tx.GatewayReference,
			&tx.AmountMinor,
			&tx.Currency,
			&tx.Status,
			&tx.GatewayPayload,
			&tx.CompletedAt,
			&tx.CreatedAt,
			&tx.UpdatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}
