package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEntity    = "test_mapping_people"
	partialEntity = "test_mapping_partial"
)

func TestMain(m *testing.M) {
	core.Register(core.EntitySchema{
		Key:             testEntity,
		Label:           "People",
		Table:           "people",
		NaturalKey:      "name",
		DisplayName:     "name",
		CreateIfMissing: true,
		OnExisting:      core.ExistingUpdate,
		Fields: []core.FieldSpec{
			{Name: "name", Column: "Name", RequiredColumn: true},
			{Name: "phone", Column: "Phone", Aliases: []string{"Tel"}},
		},
	})
	core.Register(core.EntitySchema{
		Key:         partialEntity,
		Label:       "Vendors",
		Table:       "vendors",
		NaturalKey:  "name",
		DisplayName: "name",
		OnExisting:  core.ExistingUpdate,
		Fields: []core.FieldSpec{
			{Name: "name", Column: "Name", RequiredColumn: true},
			{Name: "city", Column: "City"},
		},
	})
	os.Exit(m.Run())
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`
entities:
  test_mapping_people:
    label: Staff
    fields:
      phone:
        aliases: [Mobile, 手机]
        required: true
`))
	require.NoError(t, err)

	em := m.Entities[testEntity]
	assert.Equal(t, "Staff", em.Label)
	assert.Equal(t, []string{"Mobile", "手机"}, em.Fields["phone"].Aliases)
	require.NotNil(t, em.Fields["phone"].Required)
	assert.True(t, *em.Fields["phone"].Required)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "entities: [unclosed"},
		{"no entities", "other: 1"},
		{"blank alias", "entities:\n  x:\n    fields:\n      name:\n        aliases: ['']\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestApply(t *testing.T) {
	m, err := Parse([]byte(`
entities:
  test_mapping_people:
    fields:
      name:
        column: Full Name
      phone:
        aliases: [tel, Mobile]
        required: true
`))
	require.NoError(t, err)
	require.NoError(t, m.Apply())

	s, ok := core.Get(testEntity)
	require.True(t, ok)

	name, _ := s.Field("name")
	assert.Equal(t, "Full Name", name.Column)
	assert.Contains(t, name.Aliases, "Name")

	phone, _ := s.Field("phone")
	assert.Equal(t, []string{"Tel", "Mobile"}, phone.Aliases)
	assert.True(t, phone.RequiredColumn)
}

func TestApply_UnknownNames(t *testing.T) {
	m := &Mapping{Entities: map[string]EntityMapping{
		"no_such_entity": {Label: "x"},
		testEntity:       {Fields: map[string]FieldMapping{"shoe_size": {}}},
	}}

	err := m.Apply()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownEntity)
	assert.Contains(t, err.Error(), "shoe_size")
}

func TestApply_UnknownFieldLeavesEntityUntouched(t *testing.T) {
	m, err := Parse([]byte(`
entities:
  test_mapping_partial:
    label: Suppliers
    fields:
      city:
        column: Town
        aliases: [Ort]
      shoe_size:
        aliases: [Size]
`))
	require.NoError(t, err)

	err = m.Apply()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shoe_size")

	s, ok := core.Get(partialEntity)
	require.True(t, ok)
	assert.Equal(t, "Vendors", s.Label)
	city, _ := s.Field("city")
	assert.Equal(t, "City", city.Column)
	assert.Empty(t, city.Aliases)
}

func TestApplyFile(t *testing.T) {
	assert.NoError(t, ApplyFile(""))

	err := ApplyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities:\n  test_mapping_people:\n    label: Crew\n"), 0o600))
	require.NoError(t, ApplyFile(path))

	s, _ := core.Get(testEntity)
	assert.Equal(t, "Crew", s.Label)
}
