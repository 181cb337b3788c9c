package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Normalize converts v to a JSON-friendly value: timestamps become RFC 3339
// text, decimals and uuids their string form, numbers json.Number. Values that
// cannot be encoded fall back to fmt.Sprint.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, json.Number:
		return x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return x.String()
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		return x.String()
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal.String()
	case uuid.UUID:
		return x.String()
	case uuid.NullUUID:
		if !x.Valid {
			return nil
		}
		return x.UUID.String()
	case json.RawMessage:
		return decodeJSON(x, string(x))
	case fmt.Stringer:
		return x.String()
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return decodeJSON(raw, fmt.Sprint(v))
}

func decodeJSON(raw []byte, fallback string) any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return fallback
	}
	return out
}
