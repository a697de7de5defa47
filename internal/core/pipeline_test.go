package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawTable(header []string, rows ...[]any) *Table {
	t := &Table{Header: header}
	for i, r := range rows {
		t.Rows = append(t.Rows, RawRow{Line: i + 2, Values: r})
	}
	return t
}

func TestMapRows(t *testing.T) {
	s := peopleSchema()
	table := rawTable(
		[]string{" name ", "Town", "Extra"},
		[]any{"  Ann ", "Oslo", "ignored"},
		[]any{"Bob"},
	)

	batch, err := MapRows(table, s)
	require.NoError(t, err)

	assert.Equal(t, []string{"Extra"}, batch.Unmapped)
	assert.Contains(t, batch.MissingColumns, "Joined")
	assert.NotContains(t, batch.MissingColumns, "City")

	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "Ann", batch.Rows[0].Values["name"])
	assert.Equal(t, "Oslo", batch.Rows[0].Values["city"])
	assert.Nil(t, batch.Rows[0].Values["joined"])

	// Short rows leave trailing fields null.
	assert.Equal(t, "Bob", batch.Rows[1].Values["name"])
	assert.Nil(t, batch.Rows[1].Values["city"])
	assert.Len(t, batch.Rows[1].Values, len(s.Fields))
}

func TestMapRows_FirstDuplicateHeaderWins(t *testing.T) {
	table := rawTable([]string{"Name", "City", "City"}, []any{"Ann", "Oslo", "Bergen"})

	batch, err := MapRows(table, peopleSchema())
	require.NoError(t, err)
	assert.Equal(t, "Oslo", batch.Rows[0].Values["city"])
}

func TestMapRows_MissingRequiredColumn(t *testing.T) {
	table := rawTable([]string{"City"}, []any{"Oslo"})

	_, err := MapRows(table, peopleSchema())
	require.Error(t, err)

	var missing *MissingRequiredColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"Name"}, missing.Columns)
	assert.Equal(t, ErrTypeMissingColumns, Classify(err))
	assert.Equal(t, "VAL004", MapError(err).Code)
}

func TestMapRows_RequireAnyColumn(t *testing.T) {
	s := peopleSchema()
	s.RequireAnyColumn = []string{"city", "joined"}

	_, err := MapRows(rawTable([]string{"Name"}, []any{"Ann"}), s)
	var missing *MissingRequiredColumnsError
	require.True(t, errors.As(err, &missing))
	assert.True(t, missing.AnyOf)
	assert.Equal(t, []string{"City", "Joined"}, missing.Columns)

	_, err = MapRows(rawTable([]string{"Name", "Joined"}, []any{"Ann", "2024-01-01"}), s)
	assert.NoError(t, err)
}

func mappedRow(line int, values Record) Row {
	return Row{Line: line, Values: values}
}

func TestValidateRows(t *testing.T) {
	s := peopleSchema()
	rows := []Row{
		mappedRow(2, Record{"name": "Ann", "joined": "2024/03/05", "active": "是", "a": "1,200.50", "b": "(3)"}),
		mappedRow(3, Record{"name": "", "joined": "someday", "a": "abc"}),
		mappedRow(4, Record{"name": "Cid", "active": "maybe"}),
	}

	valid, invalid := ValidateRows(rows, s)

	require.Len(t, valid, 1)
	ann := valid[0]
	assert.Equal(t, 2, ann.Line)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), ann.Values["joined"])
	assert.Equal(t, true, ann.Values["active"])
	assert.Equal(t, 1200.50, ann.Values["a"])
	assert.Equal(t, -3.0, ann.Values["b"])
	assert.Nil(t, ann.Values["city"])

	require.Len(t, invalid, 2)

	// Every problem with a row is reported at once.
	assert.Equal(t, 3, invalid[0].Row)
	assert.Len(t, invalid[0].Reasons, 3)
	assert.Contains(t, invalid[0].Message, `required field "Name" is empty`)
	assert.Contains(t, invalid[0].Message, "invalid date")
	assert.Contains(t, invalid[0].Message, "invalid number")

	assert.Equal(t, 4, invalid[1].Row)
	assert.Equal(t, "Cid", invalid[1].NaturalKey)
	assert.Contains(t, invalid[1].Message, "invalid boolean")
}

func TestValidateRow_NormalizerAndCheck(t *testing.T) {
	s := peopleSchema()
	for i := range s.Fields {
		switch s.Fields[i].Name {
		case "name":
			s.Fields[i].Normalizer = func(v string) string { return v + "!" }
		case "a":
			s.Fields[i].Check = func(v any) string {
				if v.(float64) < 0 {
					return "must not be negative"
				}
				return ""
			}
		}
	}

	typed, reasons := NewRowValidator(s).ValidateRow(mappedRow(2, Record{"name": "Ann", "a": "-1"}))
	assert.Equal(t, []string{"A: must not be negative"}, reasons)
	assert.Equal(t, "Ann!", typed.Values["name"])
}

func TestValidateCell_Enum(t *testing.T) {
	spec := FieldSpec{Name: "level", Type: FieldEnum, EnumValues: []string{"Gold", "Silver"}}

	v, err := ValidateCell("gold", spec)
	require.NoError(t, err)
	assert.Equal(t, "Gold", v)

	_, err = ValidateCell("bronze", spec)
	require.Error(t, err)
	assert.Equal(t, "VAL006", MapError(err).Code)
}

func TestCheckPeriods(t *testing.T) {
	s := monthlySchema()
	rows := []Row{
		mappedRow(2, Record{"name": "Ann", "month": month(2024, 6)}),
		mappedRow(3, Record{"name": "Bob", "month": nil}),
		mappedRow(4, Record{"name": "Cid", "month": month(2024, 5)}),
	}

	require.NoError(t, CheckPeriods(rows[:2], s, "2024-06"))

	err := CheckPeriods(rows, s, "2024-06")
	var mismatch *PeriodMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "2024-06", mismatch.Expected)
	require.Len(t, mismatch.Rows, 1)
	assert.Equal(t, PeriodMismatch{Row: 4, NaturalKey: "Cid", DisplayName: "Cid", Period: "2024-05"}, mismatch.Rows[0])
	assert.Equal(t, ErrTypePeriodMismatch, Classify(err))
	assert.Equal(t, "VAL007", MapError(err).Code)

	// Non-periodic entities are never checked.
	assert.NoError(t, CheckPeriods(rows, peopleSchema(), "2024-06"))
}
