package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]EntitySchema)
	registryMu sync.RWMutex
)

// Register adds an entity schema to the registry.
// Panics if a schema with the same key is already registered or the schema
// is inconsistent.
func Register(s EntitySchema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[s.Key]; exists {
		panic(fmt.Sprintf("entity already registered: %s", s.Key))
	}
	if err := checkSchema(&s); err != nil {
		panic(fmt.Sprintf("invalid entity %s: %v", s.Key, err))
	}

	registry[s.Key] = s
}

// Get returns an entity schema by key.
// Returns false if not found.
func Get(key string) (EntitySchema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[key]
	return s, ok
}

// All returns all registered schemas sorted by key.
func All() []EntitySchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]EntitySchema, 0, len(registry))
	for _, s := range registry {
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// Override applies fn to a registered schema and stores the result.
// Used to layer file-based header aliases over the built-in mappings.
func Override(key string, fn func(*EntitySchema)) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	s, ok := registry[key]
	if !ok {
		return fmt.Errorf("unknown entity %q", key)
	}

	// Copy slices so the override never aliases the original definition.
	s.Fields = append([]FieldSpec(nil), s.Fields...)
	for i := range s.Fields {
		s.Fields[i].Aliases = append([]string(nil), s.Fields[i].Aliases...)
	}

	fn(&s)
	if err := checkSchema(&s); err != nil {
		return fmt.Errorf("override %s: %w", key, err)
	}
	registry[key] = s
	return nil
}

// EntityCount returns the number of registered schemas.
func EntityCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]EntitySchema)
}

func checkSchema(s *EntitySchema) error {
	if s.Key == "" || s.Table == "" {
		return fmt.Errorf("key and table are required")
	}
	if _, ok := s.Field(s.NaturalKey); !ok {
		return fmt.Errorf("natural key %q is not a declared field", s.NaturalKey)
	}
	if s.PeriodField != "" {
		if _, ok := s.Field(s.PeriodField); !ok {
			return fmt.Errorf("period field %q is not a declared field", s.PeriodField)
		}
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if seen[f.Name] {
			return fmt.Errorf("field %q declared twice", f.Name)
		}
		seen[f.Name] = true

		if f.List != "" {
			if _, ok := s.List(f.List); !ok {
				return fmt.Errorf("field %q references unknown list %q", f.Name, f.List)
			}
		}
		if f.Policy == MergeDerivedSum {
			if len(f.Components) == 0 {
				return fmt.Errorf("derived field %q has no components", f.Name)
			}
			for _, c := range f.Components {
				if _, ok := s.Field(c); !ok {
					return fmt.Errorf("derived field %q references unknown component %q", f.Name, c)
				}
			}
		}
	}

	for _, l := range s.Lists {
		if l.Policy != MergeAppendDedup && l.Policy != MergeAppendOnly {
			return fmt.Errorf("list %q must be append-dedup or append-only", l.Name)
		}
		if l.Policy == MergeAppendDedup && len(l.DedupKey) == 0 {
			return fmt.Errorf("list %q has no dedup key", l.Name)
		}
	}

	if s.Audit != nil {
		for _, k := range s.Audit.KeyFields {
			if _, ok := s.Field(k); !ok {
				return fmt.Errorf("audit key field %q is not a declared field", k)
			}
		}
	}
	return nil
}
