// Package schema layers file-based column mappings over the built-in entity
// schemas, so a new export layout can be accepted without a release.
//
// A mapping file looks like:
//
//	entities:
//	  customer:
//	    label: Customers
//	    fields:
//	      companyName:
//	        aliases: ["Company", "客户名称"]
//	      consultantAccountant:
//	        column: Accountant
//	        required: true
package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Mapping is the parsed content of a mapping file.
type Mapping struct {
	Entities map[string]EntityMapping `yaml:"entities" validate:"required,dive"`
}

// EntityMapping overrides parts of one entity schema.
type EntityMapping struct {
	Label  string                  `yaml:"label" validate:"omitempty,max=128"`
	Fields map[string]FieldMapping `yaml:"fields" validate:"dive"`
}

// FieldMapping overrides how one canonical field is found in the source.
// Column replaces the canonical header; Aliases are appended to the
// built-in ones; Required toggles whether the header must be present.
type FieldMapping struct {
	Column   string   `yaml:"column" validate:"omitempty,max=128"`
	Aliases  []string `yaml:"aliases" validate:"dive,required,max=128"`
	Required *bool    `yaml:"required"`
}

// Load reads and validates a mapping file.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates mapping YAML.
func Parse(data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid mapping file: %w", validationError(err))
	}
	return &m, nil
}

// Apply layers the mapping over the registry. Every entity and field must
// already exist; nothing is applied for an entity whose override fails.
func (m *Mapping) Apply() error {
	keys := make([]string, 0, len(m.Entities))
	for k := range m.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		em := m.Entities[key]
		if _, ok := core.Get(key); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", core.ErrUnknownEntity, key))
			continue
		}

		var unknown []string
		err := core.Override(key, func(s *core.EntitySchema) {
			for name := range em.Fields {
				if fieldIndex(s, name) < 0 {
					unknown = append(unknown, name)
				}
			}
			if len(unknown) > 0 {
				return
			}

			if em.Label != "" {
				s.Label = em.Label
			}
			for name, fm := range em.Fields {
				f := &s.Fields[fieldIndex(s, name)]
				if fm.Column != "" && fm.Column != f.Column {
					f.Aliases = append(f.Aliases, f.Column)
					f.Column = fm.Column
				}
				f.Aliases = appendMissing(f.Aliases, fm.Aliases)
				if fm.Required != nil {
					f.RequiredColumn = *fm.Required
				}
			}
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			errs = append(errs, fmt.Errorf("%s: unknown fields %s", key, strings.Join(unknown, ", ")))
		}
	}
	return errors.Join(errs...)
}

// ApplyFile loads path and applies it. An empty path is a no-op.
func ApplyFile(path string) error {
	if path == "" {
		return nil
	}
	m, err := Load(path)
	if err != nil {
		return err
	}
	return m.Apply()
}

func fieldIndex(s *core.EntitySchema, name string) int {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

func appendMissing(dst, src []string) []string {
	for _, a := range src {
		a = strings.TrimSpace(a)
		found := false
		for _, d := range dst {
			if strings.EqualFold(d, a) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, a)
		}
	}
	return dst
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: rule '%s' failed for %v", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
