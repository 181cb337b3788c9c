package xmlspec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Coercion names the conversion applied to a field's text.
type Coercion int

const (
	String Coercion = iota
	Int
	Float
	Decimal
	Date
	Bool
)

var coercionNames = map[Coercion]string{
	String:  "string",
	Int:     "int",
	Float:   "float",
	Decimal: "decimal",
	Date:    "date",
	Bool:    "bool",
}

func (c Coercion) String() string {
	if name, ok := coercionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("coercion(%d)", int(c))
}

func ParseCoercion(s string) (Coercion, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return String, nil
	}
	for c, name := range coercionNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown coercion %q", s)
}

func (c *Coercion) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCoercion(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Coercion) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// Kind tells whether a Value holds converted data or the untouched text.
type Kind int

const (
	Coerced Kind = iota + 1
	Raw
)

func (k Kind) String() string {
	switch k {
	case Coerced:
		return "coerced"
	case Raw:
		return "raw"
	default:
		return "unknown"
	}
}

// Value is one extracted field. Data holds string, int64, float64,
// decimal.Decimal, time.Time or bool when Kind is Coerced, and the source text
// when Kind is Raw. Text is always the source text.
type Value struct {
	Kind Kind
	Data any
	Text string
}

func (v Value) IsRaw() bool {
	return v.Kind == Raw
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}

// Coerce converts text. It never fails: text that does not convert is
// returned as a Raw value.
func (c Coercion) Coerce(text string) Value {
	text = strings.TrimSpace(text)
	raw := Value{Kind: Raw, Data: text, Text: text}
	switch c {
	case String:
		return Value{Kind: Coerced, Data: text, Text: text}
	case Int:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return raw
		}
		return Value{Kind: Coerced, Data: n, Text: text}
	case Float:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return raw
		}
		return Value{Kind: Coerced, Data: f, Text: text}
	case Decimal:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return raw
		}
		return Value{Kind: Coerced, Data: d, Text: text}
	case Date:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return Value{Kind: Coerced, Data: t, Text: text}
			}
		}
		return raw
	case Bool:
		switch strings.ToLower(text) {
		case "true", "y", "yes", "1":
			return Value{Kind: Coerced, Data: true, Text: text}
		case "false", "n", "no", "0":
			return Value{Kind: Coerced, Data: false, Text: text}
		}
		return raw
	default:
		return raw
	}
}
