package database

import (
	"context"
	"errors"
	"fmt"

	"lightning-gateway/pkg/pubsub"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvoiceNotFound is returned when an invoice is not in the database.
var ErrInvoiceNotFound = errors.New("invoice not found")

// InvoiceRepository handles all database operations for invoices. It also
// announces successful inserts on the bus: the monitor and the generator
// both key off /invoice/created coming from the store layer.
type InvoiceRepository struct {
	db  *pgxpool.Pool
	bus *pubsub.Bus
}

// NewInvoiceRepository creates a new invoice repository instance.
func NewInvoiceRepository(db *DB, bus *pubsub.Bus) *InvoiceRepository {
	return &InvoiceRepository{db: db.pool, bus: bus}
}

// Create inserts a new invoice, populates invoice.InvoiceID with the
// assigned id and publishes the snapshot on /invoice/created. The publish
// happens synchronously, so the monitor's pending transition runs before
// Create returns when the node call succeeds.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *Invoice) error {
	query := `INSERT INTO invoices (
		status,
		encoded_invoice,
		account_id,
		created_at,
		amount_requested,
		exchange_rate,
		expired_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING invoice_id`

	err := r.db.QueryRow(
		ctx,
		query,
		invoice.Status.String(),
		invoice.EncodedInvoice,
		invoice.AccountID,
		invoice.CreatedAt,
		invoice.AmountRequested,
		invoice.ExchangeRate,
		invoice.ExpiredAt,
	).Scan(&invoice.InvoiceID)

	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	r.bus.Publish(pubsub.TopicInvoiceCreated, *invoice)
	return nil
}

// GetByID retrieves an invoice by id.
// Returns ErrInvoiceNotFound if the id does not exist.
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*Invoice, error) {
	query := `SELECT
		invoice_id, status, encoded_invoice, account_id, created_at,
		amount_requested, exchange_rate, expired_at
	FROM invoices WHERE invoice_id = $1`

	var (
		invoice Invoice
		status  string
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&invoice.InvoiceID,
		&status,
		&invoice.EncodedInvoice,
		&invoice.AccountID,
		&invoice.CreatedAt,
		&invoice.AmountRequested,
		&invoice.ExchangeRate,
		&invoice.ExpiredAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice with id %d: %w", id, err)
	}

	invoice.Status = ParseInvoiceStatus(status)
	return &invoice, nil
}

// MarkPending flips an invoice to pending and records the encoded form and
// expiry minted by the Lightning node.
// Returns ErrInvoiceNotFound if the id does not exist.
func (r *InvoiceRepository) MarkPending(ctx context.Context, id int64, encodedInvoice string, expiredAt int64) error {
	query := `UPDATE invoices
		SET status = $2,
			encoded_invoice = $3,
			expired_at = $4
		WHERE invoice_id = $1`

	commandTag, err := r.db.Exec(ctx, query, id, InvoiceStatusPending.String(), encodedInvoice, expiredAt)
	if err != nil {
		return fmt.Errorf("failed to mark invoice %d pending: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}

	return nil
}

// UpdateStatus writes a terminal status for an invoice.
// Returns ErrInvoiceNotFound if the id does not exist.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id int64, status InvoiceStatus) error {
	query := `UPDATE invoices SET status = $2 WHERE invoice_id = $1`

	commandTag, err := r.db.Exec(ctx, query, id, status.String())
	if err != nil {
		return fmt.Errorf("failed to update invoice %d status: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}

	return nil
}

// ListByAccountID retrieves all invoices of an account, newest first.
// Returns an empty slice if the account has none.
func (r *InvoiceRepository) ListByAccountID(ctx context.Context, accountID int64) ([]*Invoice, error) {
	query := `SELECT
		invoice_id, status, encoded_invoice, account_id, created_at,
		amount_requested, exchange_rate, expired_at
	FROM invoices WHERE account_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		var (
			invoice Invoice
			status  string
		)

		err := rows.Scan(
			&invoice.InvoiceID,
			&status,
			&invoice.EncodedInvoice,
			&invoice.AccountID,
			&invoice.CreatedAt,
			&invoice.AmountRequested,
			&invoice.ExchangeRate,
			&invoice.ExpiredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}

		invoice.Status = ParseInvoiceStatus(status)
		invoices = append(invoices, &invoice)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return invoices, nil
}
