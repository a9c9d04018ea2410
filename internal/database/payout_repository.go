package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPayoutNotFound is returned when a payout is not in the database.
var ErrPayoutNotFound = errors.New("payout not found")

// PayoutRepository handles all database operations for merchant payouts.
type PayoutRepository struct {
	db *pgxpool.Pool
}

// NewPayoutRepository creates a new payout repository instance.
func NewPayoutRepository(db *DB) *PayoutRepository {
	return &PayoutRepository{db: db.pool}
}

// Create inserts a new payout request and populates payout.PayoutID.
func (r *PayoutRepository) Create(ctx context.Context, payout *Payout) error {
	query := `INSERT INTO payouts (account_id, status, method, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING payout_id`

	err := r.db.QueryRow(
		ctx,
		query,
		payout.AccountID,
		payout.Status.String(),
		payout.Method,
		payout.Amount,
	).Scan(&payout.PayoutID)

	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}

	return nil
}

// UpdateStatus advances a payout through its lifecycle.
// Returns ErrPayoutNotFound if the id does not exist.
func (r *PayoutRepository) UpdateStatus(ctx context.Context, id int64, status PayoutStatus) error {
	query := `UPDATE payouts SET status = $2 WHERE payout_id = $1`

	commandTag, err := r.db.Exec(ctx, query, id, status.String())
	if err != nil {
		return fmt.Errorf("failed to update payout %d status: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrPayoutNotFound
	}

	return nil
}

// ListByAccountID retrieves all payouts of an account.
// Returns an empty slice if the account has none.
func (r *PayoutRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*Payout, error) {
	query := `SELECT payout_id, account_id, status, method, amount
	FROM payouts WHERE account_id = $1 ORDER BY payout_id DESC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var payouts []*Payout
	for rows.Next() {
		var (
			payout Payout
			status string
		)

		err := rows.Scan(
			&payout.PayoutID,
			&payout.AccountID,
			&status,
			&payout.Method,
			&payout.Amount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", err)
		}

		payout.Status = ParsePayoutStatus(status)
		payouts = append(payouts, &payout)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return payouts, nil
}
