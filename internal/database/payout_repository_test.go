//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutRepository_CreateAndList(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewPayoutRepository(db)
	ctx := context.Background()
	accountID := createTestAccount(t, db, "m1")

	payout := &Payout{
		AccountID: accountID,
		Status:    PayoutStatusInitiated,
		Method:    "mail",
		Amount:    5000,
	}
	require.NoError(t, repo.Create(ctx, payout))
	assert.NotZero(t, payout.PayoutID)

	payouts, err := repo.ListByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, int64(5000), payouts[0].Amount)
	assert.Equal(t, PayoutStatusInitiated, payouts[0].Status)
}

func TestPayoutRepository_UpdateStatus(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewPayoutRepository(db)
	ctx := context.Background()
	accountID := createTestAccount(t, db, "m1")

	payout := &Payout{AccountID: accountID, Status: PayoutStatusInitiated, Method: "mail", Amount: 5000}
	require.NoError(t, repo.Create(ctx, payout))

	require.NoError(t, repo.UpdateStatus(ctx, payout.PayoutID, PayoutStatusSent))

	payouts, err := repo.ListByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, PayoutStatusSent, payouts[0].Status)
}

func TestPayoutRepository_UpdateStatus_Missing(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewPayoutRepository(db)

	err := repo.UpdateStatus(context.Background(), 99999, PayoutStatusSent)
	assert.ErrorIs(t, err, ErrPayoutNotFound)
}
