package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when the username is already taken.
	ErrAccountExists = errors.New("account username already exists")
)

// AccountRepository handles all database operations for merchant accounts.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates a new account repository instance.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db.pool}
}

// Create inserts a new account and populates account.AccountID with the
// assigned id. Returns ErrAccountExists if the username is taken.
func (r *AccountRepository) Create(ctx context.Context, account *Account) error {
	query := `INSERT INTO accounts (username, password, email, mailing_address)
		VALUES ($1, $2, $3, $4)
		RETURNING account_id`

	err := r.db.QueryRow(
		ctx,
		query,
		account.Username,
		account.Password,
		account.Email,
		account.MailingAddress,
	).Scan(&account.AccountID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return ErrAccountExists
			}
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByUsername retrieves an account by its unique username.
// Returns ErrAccountNotFound if the username does not exist.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `SELECT account_id, username, password, email, mailing_address
		FROM accounts WHERE username = $1`

	var account Account

	err := r.db.QueryRow(ctx, query, username).Scan(
		&account.AccountID,
		&account.Username,
		&account.Password,
		&account.Email,
		&account.MailingAddress,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", username, err)
	}

	return &account, nil
}

// GetByID retrieves an account by its numeric id.
// Returns ErrAccountNotFound if the id does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT account_id, username, password, email, mailing_address
		FROM accounts WHERE account_id = $1`

	var account Account

	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.AccountID,
		&account.Username,
		&account.Password,
		&account.Email,
		&account.MailingAddress,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account with id %d: %w", id, err)
	}

	return &account, nil
}
