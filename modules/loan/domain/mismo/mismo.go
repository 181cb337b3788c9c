// Package mismo holds the mapping tables for MISMO 3.x residential loan
// documents.
package mismo

import "github.com/iota-uz/loan-sdk/pkg/xmlspec"

const (
	Namespace = "http://www.mismo.org/residential/2009/schemas"
	Prefix    = "m"
)

const (
	SectionBorrowers   = "borrowers"
	SectionAssets      = "assets"
	SectionLiabilities = "liabilities"
)

// Output keys read by the importer.
const (
	KeyExternalID      = "external_id"
	KeyPurpose         = "purpose"
	KeyAmortization    = "amortization"
	KeyNoteAmount      = "note_amount"
	KeyNoteRate        = "note_rate"
	KeyTermMonths      = "term_months"
	KeyApplicationDate = "application_date"
	KeyFirstName       = "first_name"
	KeyLastName        = "last_name"
)

// SensitiveKeys never leave the importer.
var SensitiveKeys = []string{"ssn"}

var LoanFields = []xmlspec.FieldSpec{
	{Path: ".//m:LOAN_IDENTIFIERS/m:LOAN_IDENTIFIER/m:LoanIdentifier", Key: KeyExternalID, Coerce: xmlspec.String},
	{Path: ".//m:LoanPurposeType", Key: KeyPurpose, Coerce: xmlspec.String},
	{Path: ".//m:LoanAmortizationType", Key: KeyAmortization, Coerce: xmlspec.String},
	{Path: ".//m:NoteAmount", Key: KeyNoteAmount, Coerce: xmlspec.Decimal},
	{Path: ".//m:NoteRatePercent", Key: KeyNoteRate, Coerce: xmlspec.Decimal},
	{Path: ".//m:LoanTermMonths", Key: KeyTermMonths, Coerce: xmlspec.Int},
	{Path: ".//m:APPLICATION/m:Date", Key: KeyApplicationDate, Coerce: xmlspec.Date},
}

var BorrowerSection = xmlspec.SectionSpec{
	Name:       SectionBorrowers,
	ParentPath: ".//m:PARTIES/m:PARTY",
	Children: []xmlspec.FieldSpec{
		{Path: "m:INDIVIDUAL/m:NAME/m:FirstName", Key: KeyFirstName, Coerce: xmlspec.String},
		{Path: "m:INDIVIDUAL/m:NAME/m:LastName", Key: KeyLastName, Coerce: xmlspec.String},
		{Path: "m:INDIVIDUAL/m:SSN", Key: "ssn", Coerce: xmlspec.String},
		{Path: "m:INDIVIDUAL/m:BirthDate", Key: "dob", Coerce: xmlspec.Date},
	},
}

var AssetSection = xmlspec.SectionSpec{
	Name:       SectionAssets,
	ParentPath: ".//m:ASSETS/m:ASSET",
	Children: []xmlspec.FieldSpec{
		{Attribute: "SequenceNumber", Key: "sequence", Coerce: xmlspec.Int},
		{Path: "m:ASSET_DETAIL/m:AssetType", Key: "type", Coerce: xmlspec.String},
		{Path: "m:ASSET_DETAIL/m:AssetCashOrMarketValueAmount", Key: "value", Coerce: xmlspec.Decimal},
	},
}

var LiabilitySection = xmlspec.SectionSpec{
	Name:       SectionLiabilities,
	ParentPath: ".//m:LIABILITIES/m:LIABILITY",
	Children: []xmlspec.FieldSpec{
		{Attribute: "SequenceNumber", Key: "sequence", Coerce: xmlspec.Int},
		{Path: "m:LIABILITY_DETAIL/m:LiabilityType", Key: "type", Coerce: xmlspec.String},
		{Path: "m:LIABILITY_DETAIL/m:LiabilityUnpaidBalanceAmount", Key: "balance", Coerce: xmlspec.Decimal},
		{Path: "m:LIABILITY_DETAIL/m:LiabilityMonthlyPaymentAmount", Key: "payment", Coerce: xmlspec.Decimal},
	},
}

// DefaultSpec returns the built-in tables with the "m" prefix bound to
// namespaceURI (Namespace when empty).
func DefaultSpec(namespaceURI string) xmlspec.Spec {
	if namespaceURI == "" {
		namespaceURI = Namespace
	}
	return xmlspec.Spec{
		Namespaces: xmlspec.Namespaces{Prefix: namespaceURI},
		Fields:     LoanFields,
		Sections:   []xmlspec.SectionSpec{BorrowerSection, AssetSection, LiabilitySection},
	}
}
