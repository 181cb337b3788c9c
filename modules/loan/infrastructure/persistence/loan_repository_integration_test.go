//go:build integration

package persistence_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/infrastructure/persistence"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/migrations"
)

func integrationCtx(t *testing.T) context.Context {
	t.Helper()
	dsn := os.Getenv("LOAN_TEST_DSN")
	if dsn == "" {
		t.Skip("LOAN_TEST_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	m, err := migrations.New(pool)
	require.NoError(t, err)
	_, err = m.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	return composables.WithPool(ctx, pool)
}

func TestLoanRepository_Integration_UpsertKeepsOneRow(t *testing.T) {
	ctx := integrationCtx(t)
	repo := persistence.NewLoanRepository()
	externalID := "IT-" + uuid.NewString()
	amount := decimal.RequireFromString("350000.00")

	var first *loan.Loan
	require.NoError(t, composables.InTx(ctx, func(ctx context.Context) error {
		saved, inserted, err := repo.Upsert(ctx, &loan.Loan{
			ExternalID:   &externalID,
			FirstName:    "Jane",
			NoteAmount:   &amount,
			ImportSource: loan.SourceXML,
		})
		if err != nil {
			return err
		}
		require.True(t, inserted)
		first = saved
		return nil
	}))

	updated := decimal.RequireFromString("360000.00")
	require.NoError(t, composables.InTx(ctx, func(ctx context.Context) error {
		before, err := repo.GetByExternalIDForUpdate(ctx, externalID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, before.ID)

		saved, inserted, err := repo.Upsert(ctx, &loan.Loan{
			ExternalID:   &externalID,
			FirstName:    "Jane",
			NoteAmount:   &updated,
			ImportSource: loan.SourceXML,
		})
		if err != nil {
			return err
		}
		require.False(t, inserted)
		assert.Equal(t, first.ID, saved.ID)
		assert.True(t, updated.Equal(*saved.NoteAmount))
		return nil
	}))

	count, err := repo.Count(ctx, &loan.FindParams{ExternalID: externalID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestLoanRepository_Integration_DuplicateCreateIsUniqueViolation(t *testing.T) {
	ctx := integrationCtx(t)
	repo := persistence.NewLoanRepository()
	externalID := "IT-" + uuid.NewString()

	require.NoError(t, composables.InTx(ctx, func(ctx context.Context) error {
		_, err := repo.Create(ctx, &loan.Loan{ExternalID: &externalID})
		return err
	}))
	err := composables.InTx(ctx, func(ctx context.Context) error {
		_, err := repo.Create(ctx, &loan.Loan{ExternalID: &externalID})
		return err
	})
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "23505", pgErr.Code)
}
