package core

// merge.go builds the records written for created and updated entities.
//
// Updates are partial: a blank incoming value never clears stored data.
// List fields only grow. Derived totals are recomputed from the merged
// state so a total always agrees with its components.

import (
	"strings"
	"time"
)

// BuildCreate returns the full record for a new entity.
func BuildCreate(s *EntitySchema, row Row, now time.Time) Record {
	rec := make(Record, len(s.Fields)+2)

	for _, f := range s.Fields {
		if f.List != "" || f.Policy == MergeDerivedSum {
			continue
		}
		v := row.Values[f.Name]
		if IsBlank(v) {
			if f.DefaultZero && f.Type == FieldNumeric {
				rec[f.Name] = 0.0
			}
			continue
		}
		rec[f.Name] = roundValue(f, v)
	}

	for _, l := range s.Lists {
		list := []SubRecord{}
		if sub, ok := subRecordFor(s, l, row); ok {
			list = append(list, sub)
		}
		rec[l.Name] = list
	}

	for _, f := range s.Fields {
		if f.Policy != MergeDerivedSum {
			continue
		}
		rec[f.Name] = derive(f, rec, row.Values[f.Name])
	}

	rec[FieldCreatedAt] = now
	rec[FieldUpdatedAt] = now
	return rec
}

// BuildUpdate merges row into an existing entity. It returns the changed
// columns and the names of the fields the row wrote. Timestamps are
// included in changes but not in written.
func BuildUpdate(s *EntitySchema, existing Record, row Row, now time.Time) (Record, []string) {
	merged := make(Record, len(existing))
	for k, v := range existing {
		merged[k] = v
	}

	changes := make(Record)
	var written []string

	for _, f := range s.Fields {
		if f.List != "" || f.Policy == MergeDerivedSum {
			continue
		}
		v := row.Values[f.Name]
		if IsBlank(v) {
			continue
		}
		v = roundValue(f, v)
		changes[f.Name] = v
		merged[f.Name] = v
		written = append(written, f.Name)
	}

	for _, l := range s.Lists {
		sub, ok := subRecordFor(s, l, row)
		if !ok {
			continue
		}
		current := AsSubRecords(merged[l.Name])
		if l.Policy == MergeAppendDedup && containsKey(current, sub, l.DedupKey) {
			continue
		}
		next := make([]SubRecord, len(current), len(current)+1)
		copy(next, current)
		next = append(next, sub)
		changes[l.Name] = next
		merged[l.Name] = next
		written = append(written, l.Name)
	}

	for _, f := range s.Fields {
		if f.Policy != MergeDerivedSum {
			continue
		}
		given := row.Values[f.Name]
		v := derive(f, merged, given)
		if IsBlank(given) && valuesEqual(existing[f.Name], v) {
			continue
		}
		changes[f.Name] = v
		merged[f.Name] = v
		written = append(written, f.Name)
	}

	changes[FieldUpdatedAt] = now
	return changes, written
}

// derive computes a derived-sum field. A supplied non-zero value wins unless
// the field is marked Always.
func derive(f FieldSpec, state Record, given any) float64 {
	if !f.Always && !IsBlank(given) {
		if v := toFloat(given); v != 0 {
			return round2(v)
		}
	}
	var sum float64
	for _, c := range f.Components {
		sum += toFloat(state[c])
	}
	return round2(sum)
}

// subRecordFor collects the list members of a row. It reports false when
// every member is blank.
func subRecordFor(s *EntitySchema, l ListSpec, row Row) (SubRecord, bool) {
	sub := make(SubRecord)
	found := false
	for _, f := range s.Fields {
		if f.List != l.Name {
			continue
		}
		v := row.Values[f.Name]
		if !IsBlank(v) {
			found = true
		}
		sub[f.MemberName()] = listValue(v)
	}
	if !found {
		return nil, false
	}
	for k, v := range l.Defaults {
		if _, set := sub[k]; !set {
			sub[k] = cloneDefault(v)
		}
	}
	return sub, true
}

// containsKey reports whether list holds a sub-record with the same
// composite key as sub.
func containsKey(list []SubRecord, sub SubRecord, key []string) bool {
	for _, existing := range list {
		match := true
		for _, k := range key {
			if keyText(existing[k]) != keyText(sub[k]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func keyText(v any) string {
	return strings.TrimSpace(FormatValue(v))
}

// listValue converts a typed value to its JSON-friendly list form.
func listValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return v
}

func cloneDefault(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	case []any:
		return append([]any{}, t...)
	default:
		return v
	}
}

func roundValue(f FieldSpec, v any) any {
	if n, ok := v.(float64); ok && f.Type == FieldNumeric {
		return round2(n)
	}
	return v
}

func valuesEqual(a, b any) bool {
	if IsBlank(a) || IsBlank(b) {
		return IsBlank(a) && IsBlank(b)
	}
	return toFloat(a) == toFloat(b)
}
