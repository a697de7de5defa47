package core

import (
	"strings"
	"time"
	"unicode"
)

// Record maps canonical field names to values.
// Values are nil, string, float64, bool, time.Time, or []SubRecord for list fields.
type Record map[string]any

// SubRecord is one entry of a structured list field.
type SubRecord map[string]any

// FieldType represents the expected data type for a source column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
	FieldPeriod // year-month; stored as the first day of the month
)

// String returns a human-readable name for a field type.
func (ft FieldType) String() string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	case FieldPeriod:
		return "period"
	default:
		return "value"
	}
}

// MergePolicy decides how an incoming value combines with stored state.
type MergePolicy int

const (
	// MergeOverwrite replaces the stored value when the incoming value is non-blank.
	MergeOverwrite MergePolicy = iota
	// MergeAppendDedup appends a sub-record unless one with the same dedup key exists.
	MergeAppendDedup
	// MergeAppendOnly always appends a sub-record.
	MergeAppendOnly
	// MergeDerivedSum recomputes a numeric field from its components.
	MergeDerivedSum
)

func (p MergePolicy) String() string {
	switch p {
	case MergeAppendDedup:
		return "append-dedup"
	case MergeAppendOnly:
		return "append-only"
	case MergeDerivedSum:
		return "derived-sum"
	default:
		return "overwrite"
	}
}

// ExistingPolicy decides what happens to a row whose natural key is already stored.
type ExistingPolicy int

const (
	ExistingUpdate ExistingPolicy = iota
	ExistingSkip                  // report as a duplicate and leave the stored entity untouched
)

func (p ExistingPolicy) String() string {
	if p == ExistingSkip {
		return "skip"
	}
	return "update"
}

// FieldSpec describes one canonical field and the source column feeding it.
type FieldSpec struct {
	Name           string              // Canonical field name
	Column         string              // Source column header
	Aliases        []string            // Alternative headers accepted for Column
	DBColumn       string              // Store column (derived from Name if empty)
	Type           FieldType           // Expected data type
	Required       bool                // Value must be non-blank
	RequiredColumn bool                // Column must be present in the file header
	EnumValues     []string            // Valid values for FieldEnum
	Normalizer     func(string) string // Optional transformation applied before parsing
	Check          func(any) string    // Optional extra rule; returns a reason or ""
	Policy         MergePolicy
	DefaultZero    bool // Numeric: store 0 on create when blank

	// List membership: the value lands in SubRecord[Member] of list field List.
	List   string
	Member string

	// Derived fields (Policy == MergeDerivedSum).
	Components []string
	Always     bool // Recompute even when the row supplies a value
}

// MemberName returns the sub-record key for a list member field.
func (f FieldSpec) MemberName() string {
	if f.Member != "" {
		return f.Member
	}
	return f.Name
}

// Headers returns the primary column header followed by its aliases.
func (f FieldSpec) Headers() []string {
	if f.Column == "" {
		return f.Aliases
	}
	return append([]string{f.Column}, f.Aliases...)
}

// ListSpec describes a structured list field.
type ListSpec struct {
	Name     string
	DBColumn string
	Policy   MergePolicy // MergeAppendDedup or MergeAppendOnly
	DedupKey []string    // Member names forming the composite key for MergeAppendDedup
	Defaults SubRecord   // Members added to every new sub-record (e.g. images: {})
}

// AuditSpec names the history table and the operationally significant fields.
type AuditSpec struct {
	Table     string
	KeyFields []string
}

// EntitySchema is the per-entity configuration driving the whole pipeline.
type EntitySchema struct {
	Key         string // Registry key: "customer", "social_insurance"
	Label       string
	Table       string
	NaturalKey  string // Canonical field used to find stored entities
	DisplayName string // Canonical field shown in reports and audit records
	PeriodField string // Non-empty for periodic entities

	CreateIfMissing bool // Default when the request does not say
	OnExisting      ExistingPolicy

	Fields []FieldSpec
	Lists  []ListSpec

	// RequireAnyColumn lists canonical fields of which at least one column
	// must be present in the file.
	RequireAnyColumn []string

	Audit *AuditSpec
}

// Periodic reports whether the entity represents a recurring monthly fact.
func (s *EntitySchema) Periodic() bool {
	return s.PeriodField != ""
}

// Field returns the spec for a canonical field name.
func (s *EntitySchema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// List returns the spec for a list field name.
func (s *EntitySchema) List(name string) (ListSpec, bool) {
	for _, l := range s.Lists {
		if l.Name == name {
			return l, true
		}
	}
	return ListSpec{}, false
}

// Columns returns the primary source headers in declaration order.
func (s *EntitySchema) Columns() []string {
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Column != "" {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// ColumnFor returns the store column for a canonical field or list name.
func (s *EntitySchema) ColumnFor(name string) string {
	for _, f := range s.Fields {
		if f.Name == name && f.DBColumn != "" {
			return f.DBColumn
		}
	}
	for _, l := range s.Lists {
		if l.Name == name && l.DBColumn != "" {
			return l.DBColumn
		}
	}
	return SnakeCase(name)
}

// storedNames returns every canonical name persisted as its own column.
func (s *EntitySchema) storedNames() []string {
	names := make([]string, 0, len(s.Fields)+len(s.Lists)+2)
	for _, f := range s.Fields {
		if f.List == "" {
			names = append(names, f.Name)
		}
	}
	for _, l := range s.Lists {
		names = append(names, l.Name)
	}
	return append(names, FieldCreatedAt, FieldUpdatedAt)
}

// Timestamp fields maintained on every write.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// SnakeCase converts a camelCase field name to snake_case.
// Digits stay attached to the preceding word: "phone2" -> "phone2".
func SnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Entity is a stored entity: its surrogate identifier plus canonical fields.
type Entity struct {
	ID     int64
	Fields Record
}

// RawRow is one data line of an ingested table.
// Values align with Table.Header; blank-like cells are nil.
type RawRow struct {
	Line   int
	Values []any
}

// Table is the ingestor's output.
type Table struct {
	Name     string
	Encoding string
	Header   []string
	Rows     []RawRow
}

// Row is one line after mapping (raw strings) or validation (typed values).
type Row struct {
	Line   int
	Values Record
}

// Text returns a field value formatted for reports.
func (r Row) Text(field string) string {
	return FormatValue(r.Values[field])
}

// FormatValue renders a record value as display text.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	case float64:
		return formatFloat(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return toString(t)
	}
}
