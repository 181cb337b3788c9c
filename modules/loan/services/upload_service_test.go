package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/taskqueue"
)

func newUploadService(uploads *memUploads, importer LoanImporter, queue taskqueue.Enqueuer) *UploadService {
	return NewUploadService(uploads, importer, queue, UploadServiceOptions{
		MaxFiles: 3,
		MaxSize:  1 << 20,
		Now:      func() time.Time { return fixedNow },
	})
}

func TestUploadService_SubmitCreatesPendingAndSchedules(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	queue := &recordingQueue{}
	svc := newUploadService(uploads, nil, queue)

	rc := &composables.RequestContext{RequestID: "req-1", Actor: &composables.Actor{ID: "7", Name: "Ops"}, IP: "10.0.0.1", UserAgent: "curl"}
	ctx := composables.WithRequestContext(context.Background(), rc)

	created, err := svc.Submit(ctx, []UploadFile{
		{Name: "a.xml", Data: []byte(fixture(t))},
		{Name: "b.xml", Data: []byte(`<?xml version="1.0"?><x/>`)},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Len(t, queue.tasks, 2)

	for i, u := range created {
		assert.Equal(t, xmlupload.StatusPending, u.Status)
		assert.True(t, strings.HasPrefix(u.ContentType, "text/xml"), u.ContentType)
		stored, err := uploads.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, xmlupload.StatusPending, stored.Status)

		task := queue.tasks[i]
		assert.Equal(t, UploadTopic, task.Topic)
		var payload uploadPayload
		require.NoError(t, json.Unmarshal(task.Payload, &payload))
		assert.Equal(t, u.ID, payload.UploadID)
		require.NotNil(t, payload.RequestContext)
		assert.Equal(t, "req-1", payload.RequestContext.RequestID)
		assert.Equal(t, "7", payload.RequestContext.Actor.ID)
		assert.NotSame(t, rc, payload.RequestContext)
	}
}

func TestUploadService_SubmitValidates(t *testing.T) {
	t.Parallel()
	svc := NewUploadService(newMemUploads(), nil, &recordingQueue{}, UploadServiceOptions{MaxFiles: 1, MaxSize: 4})
	ctx := context.Background()

	_, err := svc.Submit(ctx, nil)
	require.ErrorIs(t, err, xmlupload.ErrNoFiles)

	_, err = svc.Submit(ctx, []UploadFile{{Name: "a", Data: []byte("<a/>")}, {Name: "b", Data: []byte("<b/>")}})
	require.ErrorIs(t, err, xmlupload.ErrTooManyFiles)

	_, err = svc.Submit(ctx, []UploadFile{{Name: "big", Data: []byte("<big/>")}})
	require.ErrorIs(t, err, xmlupload.ErrFileTooLarge)
}

func TestUploadService_DispatchFailureMarksError(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	svc := newUploadService(uploads, nil, &recordingQueue{err: taskqueue.ErrQueueFull})

	created, err := svc.Submit(context.Background(), []UploadFile{{Name: "a.xml", Data: []byte("<a/>")}})
	require.NoError(t, err)
	require.Len(t, created, 1)

	stored, err := uploads.GetByID(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusError, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.True(t, strings.HasPrefix(*stored.ErrorMessage, DispatchFailedPrefix))
	assert.Equal(t, xmlupload.StatusError, created[0].Status)
}

func seedUpload(t *testing.T, uploads *memUploads, payload []byte) *xmlupload.Upload {
	t.Helper()
	u := &xmlupload.Upload{ID: uuid.New(), FileName: "loan.xml", Payload: payload, Status: xmlupload.StatusPending, UploadedAt: fixedNow}
	require.NoError(t, uploads.Create(context.Background(), u))
	return u
}

func uploadTask(t *testing.T, id uuid.UUID, rc *composables.RequestContext) taskqueue.Task {
	t.Helper()
	task, err := taskqueue.NewTask(UploadTopic, uploadPayload{UploadID: id, RequestContext: rc})
	require.NoError(t, err)
	task.Attempt = 1
	return task
}

func TestUploadService_ExecuteSuccess(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	loanID := uuid.New()
	var seenRC *composables.RequestContext
	svc := newUploadService(uploads, importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		seenRC, _ = composables.UseRequestContext(ctx)
		return &loan.Loan{ID: loanID}, nil
	}), &recordingQueue{})
	u := seedUpload(t, uploads, []byte("<LOAN/>"))

	rc := &composables.RequestContext{RequestID: "req-9", Actor: &composables.Actor{ID: "3"}}
	require.NoError(t, svc.Execute(context.Background(), uploadTask(t, u.ID, rc)))

	stored, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusProcessed, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
	assert.Equal(t, &loanID, stored.LoanID)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, seenRC)
	assert.Equal(t, "req-9", seenRC.RequestID)
	assert.Equal(t, "3", seenRC.Actor.ID)
}

func TestUploadService_ExecuteWithoutSnapshotHasNoActor(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	called := false
	svc := newUploadService(uploads, importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		called = true
		assert.Nil(t, composables.UseActor(ctx))
		return &loan.Loan{ID: uuid.New()}, nil
	}), &recordingQueue{})
	u := seedUpload(t, uploads, []byte("<LOAN/>"))

	require.NoError(t, svc.Execute(context.Background(), uploadTask(t, u.ID, nil)))
	assert.True(t, called)
}

func TestUploadService_ExecuteFailureFinalizesAndReraises(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	importErr := loan.ErrMalformedDocument.Wrap(nil, "parse")
	svc := newUploadService(uploads, importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		return nil, importErr
	}), &recordingQueue{})
	u := seedUpload(t, uploads, []byte("garbage"))

	err := svc.Execute(context.Background(), uploadTask(t, u.ID, nil))
	require.ErrorIs(t, err, loan.ErrMalformedDocument)

	stored, err := uploads.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusError, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.NotEmpty(t, *stored.ErrorMessage)
}

func TestUploadService_ExecutePanicStillFinalizes(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	svc := newUploadService(uploads, importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		panic("boom")
	}), &recordingQueue{})
	u := seedUpload(t, uploads, []byte("<LOAN/>"))

	err := svc.Execute(context.Background(), uploadTask(t, u.ID, nil))
	require.Error(t, err)

	stored, err := uploads.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusError, stored.Status)
}

func TestUploadService_ExecuteUnknownUploadIsPermanent(t *testing.T) {
	t.Parallel()
	svc := newUploadService(newMemUploads(), nil, &recordingQueue{})

	err := svc.Execute(context.Background(), uploadTask(t, uuid.New(), nil))
	require.ErrorIs(t, err, xmlupload.ErrNotFound)
	assert.True(t, taskqueue.IsPermanent(err))

	bad := taskqueue.Task{Topic: UploadTopic, Payload: json.RawMessage(`{"upload_id":`)}
	assert.True(t, taskqueue.IsPermanent(svc.Execute(context.Background(), bad)))
}

func TestUploadService_ProcessedIsNeverOverwritten(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	fail := false
	svc := newUploadService(uploads, importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		if fail {
			return nil, errors.New("late duplicate failed")
		}
		return &loan.Loan{ID: uuid.New()}, nil
	}), &recordingQueue{})
	u := seedUpload(t, uploads, []byte("<LOAN/>"))

	require.NoError(t, svc.Execute(context.Background(), uploadTask(t, u.ID, nil)))
	fail = true
	require.Error(t, svc.Execute(context.Background(), uploadTask(t, u.ID, nil)))

	stored, err := uploads.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusProcessed, stored.Status)
}

// runThroughPool submits one file through a real worker pool and waits until
// done reports true for the stored upload.
func runThroughPool(t *testing.T, importer LoanImporter, data []byte, done func(*xmlupload.Upload) bool) (*memUploads, uuid.UUID) {
	t.Helper()
	uploads := newMemUploads()
	router := taskqueue.NewRouter()
	pool, err := taskqueue.NewPool(router, taskqueue.PoolOptions{
		Workers: 1,
		Buffer:  4,
		Retry:   NewRetryPolicy(3, time.Millisecond, 2*time.Millisecond, 0),
	})
	require.NoError(t, err)
	svc := newUploadService(uploads, importer, pool)
	svc.Register(router)
	pool.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})

	created, err := svc.Submit(context.Background(), []UploadFile{{Name: "loan.xml", Data: data}})
	require.NoError(t, err)
	id := created[0].ID

	require.Eventually(t, func() bool {
		u, err := uploads.GetByID(context.Background(), id)
		return err == nil && done(u)
	}, 5*time.Second, 5*time.Millisecond)
	return uploads, id
}

func TestUploadService_UnparsableUploadErrorsWithoutRetry(t *testing.T) {
	t.Parallel()
	env := newImporterEnv(t, false)
	var calls atomic.Int32
	importer := importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		calls.Add(1)
		return env.importer.Import(ctx, raw)
	})

	uploads, id := runThroughPool(t, importer, []byte("this is not <xml"), func(u *xmlupload.Upload) bool {
		return u.Status != xmlupload.StatusPending
	})
	time.Sleep(20 * time.Millisecond)

	stored, err := uploads.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusError, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.NotEmpty(t, *stored.ErrorMessage)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, env.loans.count())
}

func TestUploadService_TransientFailureIsRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	loanID := uuid.New()
	importer := importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		if calls.Add(1) < 3 {
			return nil, loan.ErrTransientIO.Wrap(nil, "connection reset")
		}
		return &loan.Loan{ID: loanID}, nil
	})

	uploads, id := runThroughPool(t, importer, []byte("<LOAN/>"), func(u *xmlupload.Upload) bool {
		return u.Status == xmlupload.StatusProcessed
	})

	stored, err := uploads.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusProcessed, stored.Status)
	assert.Equal(t, &loanID, stored.LoanID)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUploadService_TransientRetriesAreCapped(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	importer := importerFunc(func(ctx context.Context, raw []byte) (*loan.Loan, error) {
		calls.Add(1)
		return nil, loan.ErrTransientIO.Wrap(nil, "still down")
	})

	uploads, id := runThroughPool(t, importer, []byte("<LOAN/>"), func(u *xmlupload.Upload) bool {
		return u.Attempts == 4 && u.Status == xmlupload.StatusError
	})
	time.Sleep(20 * time.Millisecond)

	stored, err := uploads.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, xmlupload.StatusError, stored.Status)
	assert.Equal(t, int32(4), calls.Load(), "MaxRetries=3 allows four attempts")
}

func TestUploadService_List(t *testing.T) {
	t.Parallel()
	uploads := newMemUploads()
	svc := newUploadService(uploads, nil, &recordingQueue{})
	seedUpload(t, uploads, []byte("<a/>"))
	seedUpload(t, uploads, []byte("<b/>"))

	list, total, err := svc.List(context.Background(), &xmlupload.FindParams{Status: xmlupload.StatusPending})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(2), total)
}
