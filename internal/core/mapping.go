package core

import (
	"strings"
)

// HeaderIndex maps column names (lowercase) to their position in the header.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a header row.
// Keys are lowercased for case-insensitive matching; the first occurrence of
// a repeated header wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup || key == "" {
			continue
		}
		idx[key] = i
	}
	return idx
}

// Lookup returns the position of the first header matching any candidate.
func (h HeaderIndex) Lookup(candidates ...string) (int, bool) {
	for _, c := range candidates {
		if pos, ok := h[strings.ToLower(CleanCell(c))]; ok {
			return pos, true
		}
	}
	return 0, false
}

// MappedBatch is the schema mapper's output.
type MappedBatch struct {
	Rows []Row
	// MissingColumns lists optional source columns absent from the file.
	// Their canonical fields are null on every row.
	MissingColumns []string
	// Unmapped lists file columns that no field claims.
	Unmapped []string
}

// MapRows translates raw columns to canonical fields.
// Required columns are checked against the header before any row is touched;
// a missing one fails the batch with MissingRequiredColumnsError.
func MapRows(t *Table, s *EntitySchema) (*MappedBatch, error) {
	idx := MakeHeaderIndex(t.Header)

	positions := make(map[string]int, len(s.Fields))
	var missingRequired, missingOptional []string
	for _, f := range s.Fields {
		if len(f.Headers()) == 0 {
			continue
		}
		pos, ok := idx.Lookup(f.Headers()...)
		if ok {
			positions[f.Name] = pos
			continue
		}
		if f.RequiredColumn {
			missingRequired = append(missingRequired, f.Column)
		} else {
			missingOptional = append(missingOptional, f.Column)
		}
	}

	if len(missingRequired) > 0 {
		return nil, &MissingRequiredColumnsError{Columns: missingRequired}
	}

	if len(s.RequireAnyColumn) > 0 {
		found := false
		cols := make([]string, 0, len(s.RequireAnyColumn))
		for _, name := range s.RequireAnyColumn {
			if _, ok := positions[name]; ok {
				found = true
				break
			}
			if f, ok := s.Field(name); ok {
				cols = append(cols, f.Column)
			}
		}
		if !found {
			return nil, &MissingRequiredColumnsError{Columns: cols, AnyOf: true}
		}
	}

	claimed := make(map[int]bool, len(positions))
	for _, pos := range positions {
		claimed[pos] = true
	}
	var unmapped []string
	for i, h := range t.Header {
		if !claimed[i] && h != "" {
			unmapped = append(unmapped, h)
		}
	}

	batch := &MappedBatch{
		Rows:           make([]Row, 0, len(t.Rows)),
		MissingColumns: missingOptional,
		Unmapped:       unmapped,
	}

	for _, raw := range t.Rows {
		values := make(Record, len(s.Fields))
		for _, f := range s.Fields {
			pos, ok := positions[f.Name]
			if !ok || pos >= len(raw.Values) {
				values[f.Name] = nil
				continue
			}
			v := raw.Values[pos]
			if str, isStr := v.(string); isStr {
				v = strings.TrimSpace(str)
			}
			values[f.Name] = v
		}
		batch.Rows = append(batch.Rows, Row{Line: raw.Line, Values: values})
	}

	return batch, nil
}
