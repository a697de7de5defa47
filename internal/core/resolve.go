package core

import (
	"context"
	"fmt"
	"strings"
)

// Action is the key resolver's classification of a row.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionSkip
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionSkip:
		return "skip"
	case ActionReject:
		return "reject"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Rejection and skip reasons reported on failed records.
const (
	ReasonKeyNotFound    = "natural key not found in store"
	ReasonPeriodNotFound = "no record for this natural key and period"
	ReasonKeyExists      = "natural key already exists"
	ReasonDuplicateBatch = "natural key already exists earlier in this file"
)

// Resolution is the plan for one valid row.
type Resolution struct {
	Row      Row
	Identity string  // Natural key, plus "|YYYY-MM" for periodic entities
	Action   Action
	Existing *Entity // Stored entity for updates; shared by rows with the same identity
	Pending  bool    // Outcome depends on whether an earlier row of this batch created the entity
	Replace  bool    // Delete (key, period) before inserting
	Reason   string
}

// Plan is the key resolver's output. Known holds every entity the batch has
// seen, keyed by identity; the engine adds entities as it creates them.
type Plan struct {
	Resolutions []Resolution
	Known       map[string]*Entity
}

// ResolveOptions carries the per-request flags.
type ResolveOptions struct {
	CreateIfMissing bool
	Overwrite       bool
}

// ResolveKeys classifies rows as create, update, skip or reject.
// Existing entities are fetched in a single store round trip.
func ResolveKeys(ctx context.Context, store Store, s *EntitySchema, rows []Row, opts ResolveOptions) (*Plan, error) {
	plan := &Plan{
		Resolutions: make([]Resolution, 0, len(rows)),
		Known:       make(map[string]*Entity),
	}

	keys := distinctKeys(rows, s.NaturalKey)
	if len(keys) > 0 {
		entities, err := store.FindByNaturalKey(ctx, Lookup{
			Table:     s.Table,
			KeyColumn: s.ColumnFor(s.NaturalKey),
			Keys:      keys,
			Columns:   lookupColumns(s),
		})
		if err != nil {
			return nil, fmt.Errorf("find existing %s: %w", s.Key, err)
		}
		for _, e := range entities {
			fields := fromColumns(s, e.Fields)
			id := Identity(s, fields)
			if _, dup := plan.Known[id]; dup {
				continue
			}
			plan.Known[id] = &Entity{ID: e.ID, Fields: fields}
		}
	}

	replace := opts.Overwrite && s.Periodic()
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		id := Identity(s, row.Values)
		res := Resolution{Row: row, Identity: id}

		existing, found := plan.Known[id]
		switch {
		case seen[id] && s.OnExisting == ExistingSkip:
			res.Action = ActionSkip
			res.Pending = true
			res.Reason = ReasonDuplicateBatch
		case seen[id]:
			res.Action = ActionUpdate
			res.Pending = true
		case found && replace:
			res.Action = ActionCreate
			res.Replace = true
			seen[id] = true
		case found && s.OnExisting == ExistingSkip:
			res.Action = ActionSkip
			res.Reason = ReasonKeyExists
		case found:
			res.Action = ActionUpdate
			res.Existing = existing
		case !opts.CreateIfMissing && s.Periodic():
			res.Action = ActionReject
			res.Reason = ReasonPeriodNotFound
		case !opts.CreateIfMissing:
			res.Action = ActionReject
			res.Reason = ReasonKeyNotFound
		default:
			res.Action = ActionCreate
			res.Replace = replace
			seen[id] = true
		}

		plan.Resolutions = append(plan.Resolutions, res)
	}

	return plan, nil
}

// Identity returns the key a row or entity is matched on.
func Identity(s *EntitySchema, values Record) string {
	key := NaturalKeyOf(s, values)
	if s.Periodic() {
		return key + "|" + PeriodOf(values[s.PeriodField])
	}
	return key
}

// NaturalKeyOf returns the trimmed natural key text of a record.
func NaturalKeyOf(s *EntitySchema, values Record) string {
	return strings.TrimSpace(FormatValue(values[s.NaturalKey]))
}

func distinctKeys(rows []Row, field string) []string {
	seen := make(map[string]bool, len(rows))
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		k := strings.TrimSpace(FormatValue(row.Values[field]))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
