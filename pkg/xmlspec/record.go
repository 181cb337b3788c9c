package xmlspec

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record maps output keys to extracted values. A key that is missing was not
// present in the source document.
type Record map[string]Value

func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

func (r Record) Get(key string) (Value, bool) {
	v, ok := r[key]
	return v, ok
}

// Text returns the source text of key, or "" when absent.
func (r Record) Text(key string) string {
	return r[key].Text
}

func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v.Kind != Coerced {
		return "", false
	}
	s, ok := v.Data.(string)
	return s, ok
}

func (r Record) Int(key string) (int64, bool) {
	v, ok := r[key]
	if !ok || v.Kind != Coerced {
		return 0, false
	}
	n, ok := v.Data.(int64)
	return n, ok
}

func (r Record) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v.Kind != Coerced {
		return 0, false
	}
	f, ok := v.Data.(float64)
	return f, ok
}

func (r Record) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := r[key]
	if !ok || v.Kind != Coerced {
		return decimal.Decimal{}, false
	}
	d, ok := v.Data.(decimal.Decimal)
	return d, ok
}

func (r Record) Date(key string) (time.Time, bool) {
	v, ok := r[key]
	if !ok || v.Kind != Coerced {
		return time.Time{}, false
	}
	t, ok := v.Data.(time.Time)
	return t, ok
}

func (r Record) Bool(key string) (bool, bool) {
	v, ok := r[key]
	if !ok || v.Kind != Coerced {
		return false, false
	}
	b, ok := v.Data.(bool)
	return b, ok
}

// Fallbacks lists keys whose value stayed raw text, mapped to that text.
func (r Record) Fallbacks() map[string]string {
	var out map[string]string
	for k, v := range r {
		if v.Kind != Raw {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v.Text
	}
	return out
}

// Plain converts the record to JSON-friendly values; decimals and dates are
// rendered as text.
func (r Record) Plain() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		switch d := v.Data.(type) {
		case decimal.Decimal:
			out[k] = d.String()
		case time.Time:
			out[k] = d.Format("2006-01-02")
		default:
			out[k] = d
		}
	}
	return out
}
