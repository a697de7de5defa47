package core

import (
	"context"
	"time"
)

// peopleSchema exercises every field and merge feature without going
// through the registry.
func peopleSchema() *EntitySchema {
	return &EntitySchema{
		Key:             "test_people",
		Label:           "People",
		Table:           "people",
		NaturalKey:      "name",
		DisplayName:     "name",
		CreateIfMissing: true,
		OnExisting:      ExistingUpdate,
		Fields: []FieldSpec{
			{Name: "name", Column: "Name", RequiredColumn: true},
			{Name: "city", Column: "City", Aliases: []string{"Town"}},
			{Name: "joined", Column: "Joined", Type: FieldDate},
			{Name: "active", Column: "Active", Type: FieldBool},
			{Name: "a", Column: "A", Type: FieldNumeric, DefaultZero: true},
			{Name: "b", Column: "B", Type: FieldNumeric, DefaultZero: true},
			{Name: "total", Column: "Total", Type: FieldNumeric, Policy: MergeDerivedSum, Components: []string{"a", "b"}},
			{Name: "contactName", Column: "Contact", List: "contacts", Member: "name"},
			{Name: "contactPhone", Column: "Phone", List: "contacts", Member: "phone"},
			{Name: "note", Column: "Note", List: "notes"},
		},
		Lists: []ListSpec{
			{Name: "contacts", Policy: MergeAppendDedup, DedupKey: []string{"name", "phone"}},
			{Name: "notes", Policy: MergeAppendOnly, Defaults: SubRecord{"images": map[string]any{}}},
		},
		Audit: &AuditSpec{Table: "history", KeyFields: []string{"city"}},
	}
}

// monthlySchema is a periodic entity keyed by name and month.
func monthlySchema() *EntitySchema {
	return &EntitySchema{
		Key:             "test_monthly",
		Table:           "monthly",
		NaturalKey:      "name",
		DisplayName:     "name",
		PeriodField:     "month",
		CreateIfMissing: true,
		OnExisting:      ExistingUpdate,
		Fields: []FieldSpec{
			{Name: "name", Column: "Name", RequiredColumn: true},
			{Name: "month", Column: "Month", Type: FieldPeriod, RequiredColumn: true},
			{Name: "amount", Column: "Amount", Type: FieldNumeric},
		},
	}
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// fakeStore serves fixed entities and records the lookups it receives.
type fakeStore struct {
	entities []Entity
	lookups  []Lookup
	findErr  error
}

func (f *fakeStore) FindByNaturalKey(_ context.Context, q Lookup) ([]Entity, error) {
	f.lookups = append(f.lookups, q)
	if f.findErr != nil {
		return nil, f.findErr
	}
	want := make(map[string]bool, len(q.Keys))
	for _, k := range q.Keys {
		want[k] = true
	}
	var out []Entity
	for _, e := range f.entities {
		if want[FormatValue(e.Fields[q.KeyColumn])] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(context.Context, string, Record) (int64, error) { return 0, nil }

func (f *fakeStore) Update(context.Context, string, int64, Record) error { return nil }

func (f *fakeStore) DeleteByPeriod(context.Context, PeriodDelete) (int64, error) { return 0, nil }

func (f *fakeStore) InsertAudit(context.Context, string, Record) error { return nil }
