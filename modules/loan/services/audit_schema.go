package services

import (
	auditservices "github.com/iota-uz/loan-sdk/modules/audit/services"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
)

const LoanTable = "loans"

// LoanAuditSchema lists the loan columns the audit trail compares. raw_xml and
// the timestamps are left out.
var LoanAuditSchema = auditservices.Schema[*loan.Loan]{
	Table: LoanTable,
	PK:    func(l *loan.Loan) string { return l.ID.String() },
	Fields: []auditservices.Field[*loan.Loan]{
		{Name: "external_id", Get: func(l *loan.Loan) any { return l.ExternalID }},
		{Name: "first_name", Get: func(l *loan.Loan) any { return l.FirstName }},
		{Name: "last_name", Get: func(l *loan.Loan) any { return l.LastName }},
		{Name: "purpose", Get: func(l *loan.Loan) any { return l.Purpose }},
		{Name: "amortization", Get: func(l *loan.Loan) any { return l.Amortization }},
		{Name: "note_amount", Get: func(l *loan.Loan) any { return l.NoteAmount }},
		{Name: "note_rate", Get: func(l *loan.Loan) any { return l.NoteRate }},
		{Name: "term_months", Get: func(l *loan.Loan) any { return l.TermMonths }},
		{Name: "application_date", Get: func(l *loan.Loan) any { return l.ApplicationDate }},
		{Name: "sections", Get: func(l *loan.Loan) any { return l.Sections }},
		{Name: "coercion_fallbacks", Get: func(l *loan.Loan) any { return l.CoercionFallbacks }},
		{Name: "import_source", Get: func(l *loan.Loan) any { return string(l.ImportSource) }},
	},
}
