package loan_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
)

func TestNoteAmountFits(t *testing.T) {
	cases := map[string]bool{
		"0":                 true,
		"9999999999999.99":  true,
		"-9999999999999.99": true,
		"350000.005":        true,
		"9999999999999.995": false,
		"10000000000000":    false,
		"10000000000000000": false,
	}
	for in, want := range cases {
		assert.Equal(t, want, loan.NoteAmountFits(decimal.RequireFromString(in)), in)
	}
}

func TestNoteRateFits(t *testing.T) {
	assert.True(t, loan.NoteRateFits(decimal.RequireFromString("99999.9999")))
	assert.True(t, loan.NoteRateFits(decimal.RequireFromString("6.12345")))
	assert.False(t, loan.NoteRateFits(decimal.RequireFromString("100000")))
	assert.False(t, loan.NoteRateFits(decimal.RequireFromString("99999.99995")))
}

func TestTermMonthsFits(t *testing.T) {
	assert.True(t, loan.TermMonthsFits(2147483647))
	assert.True(t, loan.TermMonthsFits(-2147483648))
	assert.False(t, loan.TermMonthsFits(2147483648))
	assert.False(t, loan.TermMonthsFits(3000000000))
}
