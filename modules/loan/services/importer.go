package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	auditservices "github.com/iota-uz/loan-sdk/modules/audit/services"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/mismo"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/serrors"
	"github.com/iota-uz/loan-sdk/pkg/xmlspec"
)

var tracer = otel.Tracer("loan-sdk-import")

// ResolveSpec returns the mapping table from specPath, or the built-in MISMO
// tables when specPath is empty. The "m" prefix is bound to namespaceURI
// unless the file binds it itself.
func ResolveSpec(specPath, namespaceURI string) (xmlspec.Spec, error) {
	if specPath == "" {
		spec := mismo.DefaultSpec(namespaceURI)
		return spec, spec.Validate()
	}
	spec, err := xmlspec.LoadYAMLFile(specPath)
	if err != nil {
		return xmlspec.Spec{}, fmt.Errorf("load spec %s: %w", specPath, err)
	}
	if _, ok := spec.Namespaces[mismo.Prefix]; !ok {
		if spec.Namespaces == nil {
			spec.Namespaces = xmlspec.Namespaces{}
		}
		uri := namespaceURI
		if uri == "" {
			uri = mismo.Namespace
		}
		spec.Namespaces[mismo.Prefix] = uri
		if err := spec.Validate(); err != nil {
			return xmlspec.Spec{}, fmt.Errorf("invalid spec %s: %w", specPath, err)
		}
	}
	return spec, nil
}

type ImporterOptions struct {
	Spec xmlspec.Spec
	Now  func() time.Time
}

// Importer turns one XML document into a persisted loan, keyed by its
// external identifier.
type Importer struct {
	loans    loan.Repository
	recorder *auditservices.Recorder
	spec     xmlspec.Spec
	now      func() time.Time
	inTx     func(context.Context, func(context.Context) error) error
}

func NewImporter(loans loan.Repository, recorder *auditservices.Recorder, opts ImporterOptions) (*Importer, error) {
	if err := opts.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("import spec: %w", err)
	}
	if !slices.ContainsFunc(opts.Spec.Fields, func(f xmlspec.FieldSpec) bool { return f.Key == mismo.KeyExternalID }) {
		return nil, fmt.Errorf("import spec: no field maps to %q", mismo.KeyExternalID)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Importer{
		loans:    loans,
		recorder: recorder,
		spec:     opts.Spec,
		now:      now,
		inTx:     composables.InTx,
	}, nil
}

func (s *Importer) Spec() xmlspec.Spec {
	return s.spec
}

// Import parses raw, upserts the loan by external id and records the audit
// event, all in one transaction. Nothing is committed when it fails.
func (s *Importer) Import(ctx context.Context, raw []byte) (_ *loan.Loan, err error) {
	ctx, span := tracer.Start(ctx, "loan.import")
	started := time.Now()
	defer func() {
		result := importResult(err)
		m := getMetrics()
		m.total.WithLabelValues(result).Inc()
		m.duration.WithLabelValues(result).Observe(time.Since(started).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	draft, err := s.Extract(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("loan.external_id", *draft.ExternalID))

	var saved *loan.Loan
	err = s.inTx(ctx, func(txCtx context.Context) error {
		var txErr error
		saved, txErr = s.upsert(txCtx, draft)
		return txErr
	})
	if err != nil {
		return nil, classifyStorageError(err)
	}
	composables.UseLogger(ctx).WithField("external_id", *saved.ExternalID).WithField("loan_id", saved.ID).Info("loan imported")
	return saved, nil
}

// Extract builds the unsaved loan from raw without touching storage.
func (s *Importer) Extract(raw []byte) (*loan.Loan, error) {
	doc, err := xmlspec.Parse(raw)
	if err != nil {
		return nil, err
	}
	ns := s.spec.Namespaces
	fields, err := xmlspec.ExtractSingle(doc, s.spec.Fields, ns)
	if err != nil {
		return nil, err
	}

	externalID := fields.Text(mismo.KeyExternalID)
	if externalID == "" {
		return nil, loan.ErrMissingRequiredField.Wrap(nil, mismo.KeyExternalID)
	}

	l := &loan.Loan{
		ExternalID:        &externalID,
		Purpose:           fields.Text(mismo.KeyPurpose),
		Amortization:      fields.Text(mismo.KeyAmortization),
		Sections:          loan.Sections{},
		CoercionFallbacks: map[string]string{},
		RawXML:            string(raw),
		ImportSource:      loan.SourceXML,
	}
	for k, text := range fields.Fallbacks() {
		l.CoercionFallbacks[k] = text
	}
	// Values that coerce but overflow their column are kept as text only.
	if d, ok := fields.Decimal(mismo.KeyNoteAmount); ok {
		if loan.NoteAmountFits(d) {
			l.NoteAmount = &d
		} else {
			l.CoercionFallbacks[mismo.KeyNoteAmount] = fields.Text(mismo.KeyNoteAmount)
		}
	}
	if d, ok := fields.Decimal(mismo.KeyNoteRate); ok {
		if loan.NoteRateFits(d) {
			l.NoteRate = &d
		} else {
			l.CoercionFallbacks[mismo.KeyNoteRate] = fields.Text(mismo.KeyNoteRate)
		}
	}
	if n, ok := fields.Int(mismo.KeyTermMonths); ok {
		if loan.TermMonthsFits(n) {
			v := int(n)
			l.TermMonths = &v
		} else {
			l.CoercionFallbacks[mismo.KeyTermMonths] = fields.Text(mismo.KeyTermMonths)
		}
	}
	if t, ok := fields.Date(mismo.KeyApplicationDate); ok {
		l.ApplicationDate = &t
	}

	for _, section := range s.spec.Sections {
		seq, err := xmlspec.ExtractMany(doc, section, ns)
		if err != nil {
			return nil, err
		}
		records := xmlspec.Collect(seq)
		rows := make([]map[string]any, 0, len(records))
		for i, rec := range records {
			row := rec.Plain()
			for _, key := range mismo.SensitiveKeys {
				delete(row, key)
			}
			rows = append(rows, row)
			for k, text := range rec.Fallbacks() {
				if slices.Contains(mismo.SensitiveKeys, k) {
					continue
				}
				l.CoercionFallbacks[fmt.Sprintf("%s[%d].%s", section.Name, i, k)] = text
			}
		}
		l.Sections[section.Name] = rows

		if section.Name == mismo.SectionBorrowers && len(records) > 0 {
			l.FirstName = records[0].Text(mismo.KeyFirstName)
			l.LastName = records[0].Text(mismo.KeyLastName)
		}
	}
	return l, nil
}

func (s *Importer) upsert(ctx context.Context, draft *loan.Loan) (*loan.Loan, error) {
	before, err := s.loans.GetByExternalIDForUpdate(ctx, *draft.ExternalID)
	if err != nil && !errors.Is(err, loan.ErrNotFound) {
		return nil, err
	}
	now := s.now().UTC()
	draft.ImportedAt = &now
	if before != nil {
		draft.ID = before.ID
		draft.CreatedAt = before.CreatedAt
	}

	saved, inserted, err := s.loans.Upsert(ctx, draft)
	if err != nil {
		return nil, err
	}
	if s.recorder == nil {
		return saved, nil
	}
	if inserted {
		err = auditservices.RecordCreate(ctx, s.recorder, LoanAuditSchema, saved, auditservices.AllFields)
	} else {
		if before == nil {
			// inserted concurrently after our lookup
			before = &loan.Loan{ID: saved.ID}
		}
		err = auditservices.RecordUpdate(ctx, s.recorder, LoanAuditSchema, before, saved, auditservices.AllFields)
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func importResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, loan.ErrMalformedDocument):
		return "malformed"
	case errors.Is(err, loan.ErrMissingRequiredField):
		return "missing_field"
	case errors.Is(err, loan.ErrTransientIO):
		return "transient"
	case errors.Is(err, loan.ErrConstraintViolation):
		return "constraint"
	default:
		return "error"
	}
}

// classifyStorageError maps driver failures onto the import error taxonomy.
// Errors already carrying a code pass through.
func classifyStorageError(err error) error {
	if err == nil || serrors.Code(err) != "" {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505", pgErr.Code == "22003":
			return loan.ErrConstraintViolation.Wrap(err, "%s", pgErr.ConstraintName)
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "57P"), // operator intervention
			pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "53300":
			return loan.ErrTransientIO.Wrap(err, "%s", pgErr.Code)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return loan.ErrTransientIO.Wrap(err, "storage unavailable")
	}
	return err
}
