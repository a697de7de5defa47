package core

// validation.go provides row-level validation of mapped rows.
//
// Every field of every row is checked and all reasons are collected, so a
// rejected row reports everything wrong with it at once. Valid rows come out
// typed: dates and periods as time.Time, numbers as float64, flags as bool.
// Nothing here touches the store.

import (
	"fmt"
	"strings"
)

// ValidationError describes a row rejected before key resolution.
type ValidationError struct {
	Row         int      `json:"row"`
	NaturalKey  string   `json:"naturalKey"`
	DisplayName string   `json:"displayName,omitempty"`
	Reasons     []string `json:"reasons"`
	Message     string   `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// RowValidator validates mapped rows against an entity schema.
type RowValidator struct {
	schema *EntitySchema
}

// NewRowValidator creates a validator for the given schema.
func NewRowValidator(s *EntitySchema) *RowValidator {
	return &RowValidator{schema: s}
}

// ValidateRows splits rows into typed valid rows and rejected rows.
func ValidateRows(rows []Row, s *EntitySchema) ([]Row, []ValidationError) {
	v := NewRowValidator(s)

	valid := make([]Row, 0, len(rows))
	var invalid []ValidationError
	for _, row := range rows {
		typed, reasons := v.ValidateRow(row)
		if len(reasons) > 0 {
			invalid = append(invalid, ValidationError{
				Row:         row.Line,
				NaturalKey:  row.Text(s.NaturalKey),
				DisplayName: row.Text(s.DisplayName),
				Reasons:     reasons,
				Message:     strings.Join(reasons, "; "),
			})
			continue
		}
		valid = append(valid, typed)
	}
	return valid, invalid
}

// ValidateRow returns the typed row and every reason it is invalid.
func (v *RowValidator) ValidateRow(row Row) (Row, []string) {
	typed := Row{Line: row.Line, Values: make(Record, len(row.Values))}
	var reasons []string

	for _, spec := range v.schema.Fields {
		raw, _ := row.Values[spec.Name].(string)

		if spec.Normalizer != nil && raw != "" {
			raw = spec.Normalizer(raw)
		}

		if raw == "" {
			typed.Values[spec.Name] = nil
			if spec.Required || spec.Name == v.schema.NaturalKey {
				reasons = append(reasons, fmt.Sprintf("required field %q is empty", label(spec)))
			}
			continue
		}

		value, err := ValidateCell(raw, spec)
		if err != nil {
			reasons = append(reasons, err.Error())
			continue
		}
		if spec.Check != nil {
			if reason := spec.Check(value); reason != "" {
				reasons = append(reasons, fmt.Sprintf("%s: %s", label(spec), reason))
				continue
			}
		}
		typed.Values[spec.Name] = value
	}

	return typed, reasons
}

// ValidateCell parses a single non-empty cell according to its field type.
func ValidateCell(value string, spec FieldSpec) (any, error) {
	switch spec.Type {
	case FieldNumeric:
		f, ok := ParseNumber(value)
		if !ok {
			return nil, fmt.Errorf("invalid number for %q: %q", label(spec), value)
		}
		return f, nil
	case FieldDate:
		t, ok := ParseDate(value)
		if !ok {
			return nil, fmt.Errorf("invalid date for %q: %q (use YYYY-MM-DD, YYYY/MM/DD or YYYY年MM月DD日)", label(spec), value)
		}
		return t, nil
	case FieldPeriod:
		t, ok := ParsePeriod(value)
		if !ok {
			return nil, fmt.Errorf("invalid date for %q: %q (use YYYY-MM)", label(spec), value)
		}
		return t, nil
	case FieldBool:
		b, ok := ParseBool(value)
		if !ok {
			return nil, fmt.Errorf("invalid boolean for %q: %q (use 是/否, yes/no or 1/0)", label(spec), value)
		}
		return b, nil
	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, value) {
				return ev, nil
			}
		}
		return nil, fmt.Errorf("invalid enum for %q: %q (allowed: %s)", label(spec), value, strings.Join(spec.EnumValues, ", "))
	default:
		return value, nil
	}
}

// label returns the name users know a field by: its source column.
func label(spec FieldSpec) string {
	if spec.Column != "" {
		return spec.Column
	}
	return spec.Name
}
