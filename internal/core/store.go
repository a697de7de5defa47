package core

import (
	"context"
	"sort"
	"time"
)

// Lookup asks a store for entities whose key column holds one of Keys.
type Lookup struct {
	Table     string
	KeyColumn string
	Keys      []string
	Columns   []string // Columns to return besides the identifier
}

// PeriodDelete removes the rows of one (natural key, period) pair.
type PeriodDelete struct {
	Table        string
	KeyColumn    string
	Key          string
	PeriodColumn string
	Period       string // YYYY-MM
}

// Store is the persistence contract the engine consumes.
// Records passed in and out are keyed by store column names.
// Every method is a blocking call that may fail with a connectivity or
// constraint error; inserts violating natural-key uniqueness wrap ErrDuplicateKey.
type Store interface {
	FindByNaturalKey(ctx context.Context, q Lookup) ([]Entity, error)
	Insert(ctx context.Context, table string, values Record) (int64, error)
	Update(ctx context.Context, table string, id int64, values Record) error
	DeleteByPeriod(ctx context.Context, d PeriodDelete) (int64, error)
	InsertAudit(ctx context.Context, table string, values Record) error
}

// Transactor is implemented by stores that can scope several writes to one
// transaction. The engine uses it to commit each row on its own.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// toColumns renames canonical fields to store columns.
func toColumns(s *EntitySchema, r Record) Record {
	out := make(Record, len(r))
	for name, v := range r {
		out[s.ColumnFor(name)] = v
	}
	return out
}

// fromColumns renames store columns back to canonical fields and normalizes
// driver-specific value shapes.
func fromColumns(s *EntitySchema, r Record) Record {
	out := make(Record, len(r))
	for _, name := range s.storedNames() {
		v, ok := r[s.ColumnFor(name)]
		if !ok {
			continue
		}
		if _, isList := s.List(name); isList {
			out[name] = AsSubRecords(v)
			continue
		}
		out[name] = normalizeStored(v)
	}
	return out
}

// lookupColumns lists every store column the engine reads back.
func lookupColumns(s *EntitySchema) []string {
	names := s.storedNames()
	cols := make([]string, 0, len(names))
	for _, n := range names {
		cols = append(cols, s.ColumnFor(n))
	}
	sort.Strings(cols)
	return cols
}

// AsSubRecords converts a decoded list value into sub-records.
// Accepts []SubRecord, []map[string]any and []any of maps (decoded JSON).
func AsSubRecords(v any) []SubRecord {
	switch t := v.(type) {
	case []SubRecord:
		return t
	case []map[string]any:
		out := make([]SubRecord, 0, len(t))
		for _, m := range t {
			out = append(out, SubRecord(m))
		}
		return out
	case []any:
		out := make([]SubRecord, 0, len(t))
		for _, item := range t {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, SubRecord(m))
			case SubRecord:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeStored(v any) any {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case int:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}
