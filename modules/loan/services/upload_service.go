package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/taskqueue"
)

const UploadTopic = "loan.xml_upload"

// DispatchFailedPrefix starts the error message of an upload whose task could
// not be scheduled.
const DispatchFailedPrefix = "Task dispatch failed: "

type UploadFile struct {
	Name string
	Data []byte
}

type uploadPayload struct {
	UploadID       uuid.UUID                   `json:"upload_id"`
	RequestContext *composables.RequestContext `json:"request_context,omitempty"`
}

// LoanImporter is the part of Importer the upload runner needs.
type LoanImporter interface {
	Import(ctx context.Context, raw []byte) (*loan.Loan, error)
}

type UploadServiceOptions struct {
	MaxFiles int
	MaxSize  int64
	Now      func() time.Time
}

type UploadService struct {
	repo     xmlupload.Repository
	importer LoanImporter
	queue    taskqueue.Enqueuer
	maxFiles int
	maxSize  int64
	now      func() time.Time
}

func NewUploadService(repo xmlupload.Repository, importer LoanImporter, queue taskqueue.Enqueuer, opts UploadServiceOptions) *UploadService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &UploadService{
		repo:     repo,
		importer: importer,
		queue:    queue,
		maxFiles: opts.MaxFiles,
		maxSize:  opts.MaxSize,
		now:      now,
	}
}

// IsRetryable reports whether an import failure may succeed when re-run.
func IsRetryable(err error) bool {
	return errors.Is(err, loan.ErrTransientIO)
}

// NewRetryPolicy retries transient storage failures only.
func NewRetryPolicy(maxRetries int, base, maxBackoff, jitter time.Duration) taskqueue.RetryPolicy {
	return taskqueue.RetryPolicy{
		MaxRetries:  maxRetries,
		BaseBackoff: base,
		MaxBackoff:  maxBackoff,
		JitterMax:   jitter,
		Retryable:   IsRetryable,
	}
}

// Register binds Execute to UploadTopic.
func (s *UploadService) Register(r *taskqueue.Router) {
	r.HandleFunc(UploadTopic, s.Execute)
}

// Submit stores each file as a pending upload and schedules its import. An
// upload whose task cannot be scheduled is returned already in error state.
func (s *UploadService) Submit(ctx context.Context, files []UploadFile) ([]*xmlupload.Upload, error) {
	if len(files) == 0 {
		return nil, xmlupload.ErrNoFiles
	}
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return nil, xmlupload.ErrTooManyFiles.Wrap(nil, "%d files, limit %d", len(files), s.maxFiles)
	}
	for _, f := range files {
		if s.maxSize > 0 && int64(len(f.Data)) > s.maxSize {
			return nil, xmlupload.ErrFileTooLarge.Wrap(nil, "%s: %d bytes, limit %d", f.Name, len(f.Data), s.maxSize)
		}
	}

	var snapshot *composables.RequestContext
	if rc, ok := composables.UseRequestContext(ctx); ok {
		snapshot = rc.Snapshot()
	}

	out := make([]*xmlupload.Upload, 0, len(files))
	for _, f := range files {
		u, err := s.submitOne(ctx, f, snapshot)
		if err != nil {
			return out, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *UploadService) submitOne(ctx context.Context, f UploadFile, rc *composables.RequestContext) (*xmlupload.Upload, error) {
	u := &xmlupload.Upload{
		ID:          uuid.New(),
		FileName:    f.Name,
		ContentType: mimetype.Detect(f.Data).String(),
		Size:        int64(len(f.Data)),
		Payload:     f.Data,
		Status:      xmlupload.StatusPending,
		UploadedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create upload %s: %w", f.Name, err)
	}
	getMetrics().uploads.WithLabelValues("submitted").Inc()

	task, err := taskqueue.NewTask(UploadTopic, uploadPayload{UploadID: u.ID, RequestContext: rc})
	if err == nil {
		err = s.queue.Enqueue(ctx, task)
	}
	if err == nil {
		return u, nil
	}

	msg := DispatchFailedPrefix + err.Error()
	outcome := xmlupload.Outcome{
		Status:       xmlupload.StatusError,
		ErrorMessage: &msg,
		FinishedAt:   s.now().UTC(),
	}
	if ferr := s.repo.Finalize(ctx, u.ID, outcome); ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	getMetrics().uploads.WithLabelValues("dispatch_failed").Inc()
	composables.UseLogger(ctx).WithError(err).WithField("upload_id", u.ID).Warn("upload: task dispatch failed")

	u.Status = outcome.Status
	u.ErrorMessage = outcome.ErrorMessage
	u.ProcessedAt = &outcome.FinishedAt
	return u, nil
}

// Execute imports the payload of the upload named by task. The final status
// is written on every exit path; the import error is returned so the queue's
// retry policy can act on it.
func (s *UploadService) Execute(ctx context.Context, task taskqueue.Task) (err error) {
	var payload uploadPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return taskqueue.Permanent(fmt.Errorf("decode upload payload: %w", err))
	}
	if payload.RequestContext != nil {
		ctx = composables.WithRequestContext(ctx, payload.RequestContext)
	}
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"upload_id": payload.UploadID,
		"attempt":   task.Attempt,
	})

	upload, err := s.repo.GetByID(ctx, payload.UploadID)
	if err != nil {
		if errors.Is(err, xmlupload.ErrNotFound) {
			return taskqueue.Permanent(err)
		}
		return classifyStorageError(err)
	}

	outcome := xmlupload.Outcome{Attempt: task.Attempt}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import panicked: %v", r)
		}
		outcome.FinishedAt = s.now().UTC()
		if err != nil {
			msg := err.Error()
			outcome.Status = xmlupload.StatusError
			outcome.ErrorMessage = &msg
		} else {
			outcome.Status = xmlupload.StatusProcessed
		}
		getMetrics().uploads.WithLabelValues(string(outcome.Status)).Inc()
		if ferr := s.repo.Finalize(context.WithoutCancel(ctx), upload.ID, outcome); ferr != nil {
			logger.WithError(ferr).Error("upload: failed to record outcome")
			if err == nil {
				err = classifyStorageError(ferr)
			}
		}
	}()

	saved, err := s.importer.Import(ctx, upload.Payload)
	if err != nil {
		logger.WithError(err).Warn("upload: import failed")
		return err
	}
	outcome.LoanID = &saved.ID
	return nil
}

func (s *UploadService) Get(ctx context.Context, id uuid.UUID) (*xmlupload.Upload, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UploadService) List(ctx context.Context, params *xmlupload.FindParams) ([]*xmlupload.Upload, int64, error) {
	if params == nil {
		params = &xmlupload.FindParams{}
	}
	uploads, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return uploads, count, nil
}
