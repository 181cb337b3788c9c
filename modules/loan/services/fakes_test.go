package services

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/loan-sdk/modules/audit/domain/auditevent"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/xmlupload"
	"github.com/iota-uz/loan-sdk/pkg/taskqueue"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func fixture(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile("testdata/loan_abc123.xml")
	require.NoError(t, err)
	return string(raw)
}

// edit applies old->new replacements to a fixture.
func edit(t *testing.T, doc string, pairs ...string) []byte {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	for i := 0; i < len(pairs); i += 2 {
		require.Contains(t, doc, pairs[i])
		doc = strings.Replace(doc, pairs[i], pairs[i+1], 1)
	}
	return []byte(doc)
}

// memLoans mimics the loans table. inTx restores the previous state when fn
// fails.
type memLoans struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*loan.Loan
	lockErr error
	locked  []uuid.UUID
}

func newMemLoans() *memLoans {
	return &memLoans{rows: map[uuid.UUID]*loan.Loan{}}
}

func (m *memLoans) inTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	snapshot := make(map[uuid.UUID]*loan.Loan, len(m.rows))
	for id, l := range m.rows {
		snapshot[id] = l.Clone()
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.rows = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memLoans) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memLoans) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	return l.Clone(), nil
}

func (m *memLoans) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	m.locked = append(m.locked, id)
	return l.Clone(), nil
}

func (m *memLoans) GetByExternalIDForUpdate(ctx context.Context, externalID string) (*loan.Loan, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.rows {
		if l.ExternalID != nil && *l.ExternalID == externalID {
			return l.Clone(), nil
		}
	}
	return nil, loan.ErrNotFound
}

func (m *memLoans) Upsert(ctx context.Context, l *loan.Loan) (*loan.Loan, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.rows {
		if existing.ExternalID != nil && *existing.ExternalID == *l.ExternalID {
			row := l.Clone()
			row.ID = id
			row.CreatedAt = existing.CreatedAt
			row.UpdatedAt = fixedNow
			m.rows[id] = row
			return row.Clone(), false, nil
		}
	}
	row := l.Clone()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = fixedNow
	row.UpdatedAt = fixedNow
	m.rows[row.ID] = row
	return row.Clone(), true, nil
}

func (m *memLoans) Create(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := l.Clone()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	m.rows[row.ID] = row
	return row.Clone(), nil
}

func (m *memLoans) Update(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[l.ID]; !ok {
		return nil, loan.ErrNotFound
	}
	m.rows[l.ID] = l.Clone()
	return l.Clone(), nil
}

func (m *memLoans) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return loan.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memLoans) List(ctx context.Context, params *loan.FindParams) ([]*loan.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*loan.Loan, 0, len(m.rows))
	for _, l := range m.rows {
		out = append(out, l.Clone())
	}
	return out, nil
}

func (m *memLoans) Count(ctx context.Context, params *loan.FindParams) (int64, error) {
	return int64(m.count()), nil
}

type memAudit struct {
	mu     sync.Mutex
	events []*auditevent.Event
	err    error
}

func (m *memAudit) Create(ctx context.Context, e *auditevent.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memAudit) List(ctx context.Context, params *auditevent.FindParams) ([]*auditevent.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*auditevent.Event(nil), m.events...), nil
}

func (m *memAudit) Count(ctx context.Context, params *auditevent.FindParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

func (m *memAudit) all() []*auditevent.Event {
	events, _ := m.List(context.Background(), nil)
	return events
}

// memUploads mimics xml_uploads, including the rule that a processed upload
// is final.
type memUploads struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*xmlupload.Upload
}

func newMemUploads() *memUploads {
	return &memUploads{rows: map[uuid.UUID]*xmlupload.Upload{}}
}

func (m *memUploads) Create(ctx context.Context, u *xmlupload.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.rows[u.ID] = &cp
	return nil
}

func (m *memUploads) GetByID(ctx context.Context, id uuid.UUID) (*xmlupload.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, xmlupload.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUploads) Finalize(ctx context.Context, id uuid.UUID, outcome xmlupload.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok || u.Status == xmlupload.StatusProcessed {
		return nil
	}
	u.Status = outcome.Status
	u.ErrorMessage = outcome.ErrorMessage
	if outcome.LoanID != nil {
		u.LoanID = outcome.LoanID
	}
	if outcome.Attempt > u.Attempts {
		u.Attempts = outcome.Attempt
	}
	finished := outcome.FinishedAt
	u.ProcessedAt = &finished
	return nil
}

func (m *memUploads) List(ctx context.Context, params *xmlupload.FindParams) ([]*xmlupload.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*xmlupload.Upload
	for _, u := range m.rows {
		if params != nil && params.Status != "" && u.Status != params.Status {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memUploads) Count(ctx context.Context, params *xmlupload.FindParams) (int64, error) {
	list, _ := m.List(ctx, params)
	return int64(len(list)), nil
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []taskqueue.Task
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, task taskqueue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

type importerFunc func(ctx context.Context, raw []byte) (*loan.Loan, error)

func (f importerFunc) Import(ctx context.Context, raw []byte) (*loan.Loan, error) {
	return f(ctx, raw)
}
