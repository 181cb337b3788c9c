package auditevent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
)

type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !op.Valid() {
		return "", fmt.Errorf("unknown audit operation %q", s)
	}
	return op, nil
}

// Change is the before/after pair of one field. A nil side means the field
// had no value (creation, deletion or NULL).
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type Diff map[string]Change

func (d Diff) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d Diff) Marshal() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// DecodeDiff reads a stored diff. Numbers stay json.Number so that values
// compare equal to what the recorder normalised before writing.
func DecodeDiff(raw []byte) (Diff, error) {
	out := Diff{}
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Event is one immutable audit row.
type Event struct {
	ID         uuid.UUID
	TableName  string
	RowPK      string
	Operation  Operation
	Diff       Diff
	ActorID    *string
	ActorName  *string
	RemoteAddr *string
	UserAgent  string
	RequestID  *string
	ChangedAt  time.Time
}

// Patch renders the diff as an RFC 6902 patch from the old image to the new one.
func (e *Event) Patch() (jsondiff.Patch, error) {
	before := make(map[string]any, len(e.Diff))
	after := make(map[string]any, len(e.Diff))
	for k, c := range e.Diff {
		if c.Old != nil {
			before[k] = c.Old
		}
		if c.New != nil {
			after[k] = c.New
		}
	}
	beforeBytes, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	afterBytes, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	return jsondiff.CompareJSON(beforeBytes, afterBytes)
}

type FindParams struct {
	TableName string
	RowPK     string
	Operation Operation
	Limit     int
	Offset    int
}

type Repository interface {
	Create(ctx context.Context, event *Event) error
	List(ctx context.Context, params *FindParams) ([]*Event, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
