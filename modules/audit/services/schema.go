package services

import (
	"strings"
)

var sensitiveFields = map[string]struct{}{
	"password": {},
	"ssn":      {},
	"token":    {},
}

// IsSensitive reports whether name is never written to an audit diff.
func IsSensitive(name string) bool {
	_, ok := sensitiveFields[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Field describes one audited attribute of T.
type Field[T any] struct {
	Name string
	Get  func(T) any
}

// Schema is the static audit description of an entity type.
type Schema[T any] struct {
	Table  string
	PK     func(T) string
	Fields []Field[T]
}

func (s Schema[T]) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Snapshot reads every described field of entity.
func (s Schema[T]) Snapshot(entity T) map[string]any {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Get(entity)
	}
	return out
}

// Tracked selects the fields considered for diffing.
type Tracked struct {
	all   bool
	names []string
}

var AllFields = Tracked{all: true}

func Only(names ...string) Tracked {
	return Tracked{names: names}
}

func (t Tracked) IsAll() bool {
	return t.all
}

// resolve returns the tracked names in order, limited to available with
// sensitive names removed.
func (t Tracked) resolve(available []string) []string {
	src := t.names
	if t.all {
		src = available
	}
	known := make(map[string]struct{}, len(available))
	for _, name := range available {
		known[name] = struct{}{}
	}
	out := make([]string, 0, len(src))
	seen := make(map[string]struct{}, len(src))
	for _, name := range src {
		if _, ok := known[name]; !ok || IsSensitive(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
