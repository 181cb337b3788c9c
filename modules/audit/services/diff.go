package services

import (
	"reflect"
	"sort"

	"github.com/iota-uz/loan-sdk/modules/audit/domain/auditevent"
)

// ComputeDiff compares current with proposed over the tracked fields. A field
// missing from proposed keeps its current value; unchanged fields are left out.
func ComputeDiff(current, proposed map[string]any, tracked Tracked) auditevent.Diff {
	diff := auditevent.Diff{}
	for _, name := range tracked.resolve(sortedKeys(current)) {
		oldVal := Normalize(current[name])
		newVal := oldVal
		if v, ok := proposed[name]; ok {
			newVal = Normalize(v)
		}
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		diff[name] = auditevent.Change{Old: oldVal, New: newVal}
	}
	return diff
}

// CreateDiff lists every tracked field as {old: nil, new: value}.
func (s Schema[T]) CreateDiff(entity T, tracked Tracked) auditevent.Diff {
	snap := s.Snapshot(entity)
	diff := auditevent.Diff{}
	for _, name := range tracked.resolve(s.FieldNames()) {
		v, ok := snap[name]
		if !ok {
			continue
		}
		diff[name] = auditevent.Change{Old: nil, New: Normalize(v)}
	}
	return diff
}

// DeleteDiff lists every tracked field as {old: value, new: nil}.
func (s Schema[T]) DeleteDiff(entity T, tracked Tracked) auditevent.Diff {
	snap := s.Snapshot(entity)
	diff := auditevent.Diff{}
	for _, name := range tracked.resolve(s.FieldNames()) {
		v, ok := snap[name]
		if !ok {
			continue
		}
		diff[name] = auditevent.Change{Old: Normalize(v), New: nil}
	}
	return diff
}

// UpdateDiff diffs two states of the same entity.
func (s Schema[T]) UpdateDiff(before, after T, tracked Tracked) auditevent.Diff {
	return ComputeDiff(s.Snapshot(before), s.Snapshot(after), tracked)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
