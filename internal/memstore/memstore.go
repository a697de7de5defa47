// Package memstore is an in-memory implementation of core.Store.
//
// It backs engine tests and the CLI's dry-run mode. With a base store set,
// reads fall through to the base and every write stays in memory, so a
// dry run reports exactly what a real import would do without touching the
// database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/reconcile/internal/core"
)

// Op names a store operation for failure injection.
type Op string

const (
	OpFind   Op = "find"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpAudit  Op = "audit"
)

// Hook can fail an operation. It runs with the store locked and must not
// call back into the store.
type Hook func(table string, values core.Record) error

// Option configures a Store.
type Option func(*Store)

// Unique declares a uniqueness constraint over columns of table. Rows with
// a blank value in any of the columns never conflict.
func Unique(table string, columns ...string) Option {
	return func(s *Store) {
		s.unique[table] = append(s.unique[table], columns)
	}
}

// WithBase makes the store read through to base and keep writes local.
func WithBase(base core.Store) Option {
	return func(s *Store) {
		s.base = base
	}
}

// Store holds tables of rows keyed by id.
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	state  state
	unique map[string][][]string
	hooks  map[Op]Hook
	base   core.Store
	nextID int64
}

type state struct {
	tables map[string]map[int64]core.Record
	// Overlay on base rows: patched columns and deleted ids.
	patches    map[string]map[int64]core.Record
	tombstones map[string]map[int64]bool
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state:  newState(),
		unique: make(map[string][][]string),
		hooks:  make(map[Op]Hook),
		// Local ids stay clear of ids handed out by a base store.
		nextID: 1 << 40,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.base == nil {
		s.nextID = 0
	}
	return s
}

func newState() state {
	return state{
		tables:     make(map[string]map[int64]core.Record),
		patches:    make(map[string]map[int64]core.Record),
		tombstones: make(map[string]map[int64]bool),
	}
}

// Inject installs a failure hook for op, replacing any previous one.
// A nil hook removes it.
func (s *Store) Inject(op Op, h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.hooks, op)
		return
	}
	s.hooks[op] = h
}

// Seed inserts a row without constraint checks and returns its id.
func (s *Store) Seed(table string, values core.Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(table, values)
}

// Rows returns copies of the local rows of table ordered by id. Each copy
// carries its id under "id".
func (s *Store) Rows(table string) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.state.tables[table]
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		rec := clone(rows[id])
		rec["id"] = id
		out = append(out, rec)
	}
	return out
}

// Count returns the number of local rows in table.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.tables[table])
}

// FindByNaturalKey implements core.Store.
func (s *Store) FindByNaturalKey(ctx context.Context, q core.Lookup) ([]core.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fromBase []core.Entity
	if s.base != nil {
		var err error
		fromBase, err = s.base.FindByNaturalKey(ctx, q)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(OpFind, q.Table, nil); err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(q.Keys))
	for _, k := range q.Keys {
		want[k] = true
	}

	var out []core.Entity
	for _, e := range fromBase {
		if s.state.tombstones[q.Table][e.ID] {
			continue
		}
		fields := clone(e.Fields)
		for k, v := range s.state.patches[q.Table][e.ID] {
			fields[k] = v
		}
		out = append(out, core.Entity{ID: e.ID, Fields: fields})
	}

	for _, id := range s.sortedIDs(q.Table) {
		row := s.state.tables[q.Table][id]
		if want[keyText(row[q.KeyColumn])] {
			out = append(out, core.Entity{ID: id, Fields: project(row, q.Columns)})
		}
	}
	return out, nil
}

// Insert implements core.Store.
func (s *Store) Insert(ctx context.Context, table string, values core.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.checkBase(ctx, table, values, 0); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(OpInsert, table, values); err != nil {
		return 0, err
	}
	if err := s.checkLocal(table, values, 0); err != nil {
		return 0, err
	}
	return s.put(table, values), nil
}

// Update implements core.Store.
func (s *Store) Update(ctx context.Context, table string, id int64, values core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(OpUpdate, table, values); err != nil {
		return err
	}
	if err := s.checkLocal(table, values, id); err != nil {
		return err
	}

	if row, ok := s.state.tables[table][id]; ok {
		for k, v := range values {
			row[k] = v
		}
		return nil
	}
	if s.base == nil || s.state.tombstones[table][id] {
		return fmt.Errorf("update %s: no row with id %d", table, id)
	}

	patch := s.state.patches[table]
	if patch == nil {
		patch = make(map[int64]core.Record)
		s.state.patches[table] = patch
	}
	if patch[id] == nil {
		patch[id] = make(core.Record)
	}
	for k, v := range values {
		patch[id][k] = v
	}
	return nil
}

// DeleteByPeriod implements core.Store.
func (s *Store) DeleteByPeriod(ctx context.Context, d core.PeriodDelete) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var fromBase []core.Entity
	if s.base != nil {
		var err error
		fromBase, err = s.base.FindByNaturalKey(ctx, core.Lookup{
			Table:     d.Table,
			KeyColumn: d.KeyColumn,
			Keys:      []string{d.Key},
			Columns:   []string{d.PeriodColumn},
		})
		if err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(OpDelete, d.Table, nil); err != nil {
		return 0, err
	}

	var n int64
	for id, row := range s.state.tables[d.Table] {
		if keyText(row[d.KeyColumn]) == d.Key && core.PeriodOf(row[d.PeriodColumn]) == d.Period {
			delete(s.state.tables[d.Table], id)
			n++
		}
	}

	for _, e := range fromBase {
		if s.state.tombstones[d.Table][e.ID] || core.PeriodOf(e.Fields[d.PeriodColumn]) != d.Period {
			continue
		}
		if s.state.tombstones[d.Table] == nil {
			s.state.tombstones[d.Table] = make(map[int64]bool)
		}
		s.state.tombstones[d.Table][e.ID] = true
		n++
	}
	return n, nil
}

// InsertAudit implements core.Store.
func (s *Store) InsertAudit(ctx context.Context, table string, values core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fire(OpAudit, table, values); err != nil {
		return err
	}
	s.put(table, values)
	return nil
}

// WithinTx implements core.Transactor. Transactions are serialized; when fn
// fails every change it made is rolled back.
func (s *Store) WithinTx(ctx context.Context, fn func(core.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := s.state.copy()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.state = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) put(table string, values core.Record) int64 {
	s.nextID++
	if s.state.tables[table] == nil {
		s.state.tables[table] = make(map[int64]core.Record)
	}
	s.state.tables[table][s.nextID] = clone(values)
	return s.nextID
}

func (s *Store) fire(op Op, table string, values core.Record) error {
	if h := s.hooks[op]; h != nil {
		return h(table, values)
	}
	return nil
}

// checkLocal enforces uniqueness against local rows. self is the row being
// updated, or 0 for inserts.
func (s *Store) checkLocal(table string, values core.Record, self int64) error {
	for _, cols := range s.unique[table] {
		candidate := values
		if self != 0 {
			candidate = merged(s.state.tables[table][self], values)
		}
		want, ok := uniqueKey(candidate, cols)
		if !ok {
			continue
		}
		for id, row := range s.state.tables[table] {
			if id == self {
				continue
			}
			if got, ok := uniqueKey(row, cols); ok && got == want {
				return fmt.Errorf("insert %s: %w: (%s)=(%s)", table, core.ErrDuplicateKey, strings.Join(cols, ", "), want)
			}
		}
	}
	return nil
}

// checkBase enforces uniqueness against base rows that are still visible.
func (s *Store) checkBase(ctx context.Context, table string, values core.Record, self int64) error {
	if s.base == nil {
		return nil
	}
	for _, cols := range s.unique[table] {
		want, ok := uniqueKey(values, cols)
		if !ok {
			continue
		}
		rows, err := s.base.FindByNaturalKey(ctx, core.Lookup{
			Table:     table,
			KeyColumn: cols[0],
			Keys:      []string{keyText(values[cols[0]])},
			Columns:   cols,
		})
		if err != nil {
			return err
		}

		s.mu.Lock()
		for _, e := range rows {
			if e.ID == self || s.state.tombstones[table][e.ID] {
				continue
			}
			if got, ok := uniqueKey(e.Fields, cols); ok && got == want {
				s.mu.Unlock()
				return fmt.Errorf("insert %s: %w: (%s)=(%s)", table, core.ErrDuplicateKey, strings.Join(cols, ", "), want)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) sortedIDs(table string) []int64 {
	ids := make([]int64, 0, len(s.state.tables[table]))
	for id := range s.state.tables[table] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (st state) copy() state {
	out := newState()
	for name, rows := range st.tables {
		t := make(map[int64]core.Record, len(rows))
		for id, row := range rows {
			t[id] = clone(row)
		}
		out.tables[name] = t
	}
	for name, rows := range st.patches {
		t := make(map[int64]core.Record, len(rows))
		for id, row := range rows {
			t[id] = clone(row)
		}
		out.patches[name] = t
	}
	for name, ids := range st.tombstones {
		t := make(map[int64]bool, len(ids))
		for id := range ids {
			t[id] = true
		}
		out.tombstones[name] = t
	}
	return out
}

func uniqueKey(row core.Record, cols []string) (string, bool) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v := row[c]
		if core.IsBlank(v) {
			return "", false
		}
		parts[i] = keyText(v)
	}
	return strings.Join(parts, "\x1f"), true
}

func keyText(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(core.FormatValue(v))
}

func project(row core.Record, cols []string) core.Record {
	if len(cols) == 0 {
		return clone(row)
	}
	out := make(core.Record, len(cols))
	for _, c := range cols {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func merged(row, changes core.Record) core.Record {
	out := clone(row)
	for k, v := range changes {
		out[k] = v
	}
	return out
}

func clone(r core.Record) core.Record {
	out := make(core.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
