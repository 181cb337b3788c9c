package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
)

func TestXMLUploadRepository_Create_DefaultsToPending(t *testing.T) {
	var gotArgs []any
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			assert.Contains(t, sql, "INSERT INTO xml_uploads")
			gotArgs = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}
	u := &xmlupload.Upload{FileName: "loan.xml", ContentType: "text/xml", Size: 7, Payload: []byte("<LOAN/>")}
	require.NoError(t, NewXMLUploadRepository().Create(withTx(tx), u))

	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, xmlupload.StatusPending, u.Status)
	assert.False(t, u.UploadedAt.IsZero())
	require.Len(t, gotArgs, 11)
	assert.Equal(t, "pending", gotArgs[5])
}

func TestXMLUploadRepository_Finalize_NeverLeavesProcessed(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	tx := &stubTx{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	id := uuid.New()
	loanID := uuid.New()
	finished := time.Now().UTC()
	err := NewXMLUploadRepository().Finalize(withTx(tx), id, xmlupload.Outcome{
		Status:     xmlupload.StatusProcessed,
		LoanID:     &loanID,
		Attempt:    2,
		FinishedAt: finished,
	})
	require.NoError(t, err)
	assert.Contains(t, gotSQL, "status <> 'processed'")
	assert.Equal(t, []any{id, "processed", (*string)(nil), &loanID, int32(2), finished}, gotArgs)
}

func TestXMLUploadRepository_Finalize_RejectsPending(t *testing.T) {
	err := NewXMLUploadRepository().Finalize(withTx(&stubTx{}), uuid.New(), xmlupload.Outcome{Status: xmlupload.StatusPending})
	require.Error(t, err)
}

func TestXMLUploadRepository_GetByID(t *testing.T) {
	id := uuid.New()
	now := time.Now()
	msg := "Malformed XML"
	tx := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return stubRow{values: []any{
				id, "loan.xml", "text/xml", int64(3), []byte("<a>"), "error",
				&msg, (*uuid.UUID)(nil), int32(1), now, &now,
			}}
		},
	}
	u, err := NewXMLUploadRepository().GetByID(withTx(tx), id)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusError, u.Status)
	assert.Equal(t, &msg, u.ErrorMessage)
	assert.Nil(t, u.LoanID)
	assert.Equal(t, 1, u.Attempts)

	missing := &stubTx{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return stubRow{err: pgx.ErrNoRows}
		},
	}
	_, err = NewXMLUploadRepository().GetByID(withTx(missing), id)
	require.ErrorIs(t, err, xmlupload.ErrNotFound)
}

func TestXMLUploadRepository_List_ByStatus(t *testing.T) {
	tx := &stubTx{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			assert.Contains(t, sql, "WHERE status = $1")
			assert.Contains(t, sql, "ORDER BY uploaded_at DESC")
			assert.Equal(t, []any{"error"}, args)
			return &stubRows{}, nil
		},
	}
	uploads, err := NewXMLUploadRepository().List(withTx(tx), &xmlupload.FindParams{Status: xmlupload.StatusError})
	require.NoError(t, err)
	assert.Empty(t, uploads)
}
