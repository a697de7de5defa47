// Package database implements core.Store on PostgreSQL through pgx.
//
// Statements are assembled with go-sqlbuilder in the PostgreSQL flavor.
// Identifiers come from registered entity schemas and are always quoted;
// values always travel as bind parameters.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// IDColumn is the surrogate key every entity table carries.
const IDColumn = "id"

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// TxStarter opens transactions. *pgxpool.Pool satisfies it.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is what Store needs from a connection pool.
type Pool interface {
	DBTX
	TxStarter
}

// Store is a core.Store backed by PostgreSQL.
type Store struct {
	db    DBTX
	begin TxStarter // nil when the store is already bound to a transaction
}

// New returns a store running statements on pool.
func New(pool Pool) *Store {
	return &Store{db: pool, begin: pool}
}

// FindByNaturalKey returns every row whose key column matches one of q.Keys.
func (s *Store) FindByNaturalKey(ctx context.Context, q core.Lookup) ([]core.Entity, error) {
	if len(q.Keys) == 0 {
		return nil, nil
	}
	query, args := buildFind(q)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Table, mapError(err))
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []core.Entity
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		e := core.Entity{Fields: make(core.Record, len(values))}
		for i, fd := range fields {
			if fd.Name == IDColumn {
				e.ID = toInt64(values[i])
				continue
			}
			e.Fields[fd.Name] = decodeValue(values[i])
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Table, mapError(err))
	}
	return out, nil
}

// Insert adds one row and returns its identifier.
func (s *Store) Insert(ctx context.Context, table string, values core.Record) (int64, error) {
	query, args, err := buildInsert(table, values)
	if err != nil {
		return 0, err
	}
	query += " RETURNING " + quoteIdentifier(IDColumn)

	var id int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, mapError(err))
	}
	return id, nil
}

// Update overwrites the given columns of one row.
func (s *Store) Update(ctx context.Context, table string, id int64, values core.Record) error {
	if len(values) == 0 {
		return nil
	}
	query, args, err := buildUpdate(table, id, values)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", table, id, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s %d: %w", table, id, pgx.ErrNoRows)
	}
	return nil
}

// DeleteByPeriod removes the rows of one (natural key, month) pair.
func (s *Store) DeleteByPeriod(ctx context.Context, d core.PeriodDelete) (int64, error) {
	query, args := buildDeletePeriod(d)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s %s/%s: %w", d.Table, d.Key, d.Period, mapError(err))
	}
	return tag.RowsAffected(), nil
}

// InsertAudit appends one audit row. Audit tables carry no RETURNING id.
func (s *Store) InsertAudit(ctx context.Context, table string, values core.Record) error {
	query, args, err := buildInsert(table, values)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit %s: %w", table, mapError(err))
	}
	return nil
}

// WithinTx runs fn against a transaction-bound store and commits when fn
// returns nil. A store already inside a transaction reuses it.
func (s *Store) WithinTx(ctx context.Context, fn func(core.Store) error) error {
	if s.begin == nil {
		return fn(s)
	}

	tx, err := s.begin.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&Store{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

func buildFind(q core.Lookup) (string, []interface{}) {
	cols := make([]string, 0, len(q.Columns)+1)
	cols = append(cols, quoteIdentifier(IDColumn))
	for _, c := range q.Columns {
		if c == IDColumn {
			continue
		}
		cols = append(cols, quoteIdentifier(c))
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(cols...)
	sb.From(quoteIdentifier(q.Table))
	sb.Where(sb.In(quoteIdentifier(q.KeyColumn), sqlbuilder.Flatten(q.Keys)...))
	sb.OrderBy(quoteIdentifier(IDColumn))
	return sb.Build()
}

func buildInsert(table string, values core.Record) (string, []interface{}, error) {
	if len(values) == 0 {
		return "", nil, fmt.Errorf("insert %s: no values", table)
	}
	cols := sortedColumns(values)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(quoteIdentifier(table))
	quoted := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		v, err := encodeValue(values[c])
		if err != nil {
			return "", nil, fmt.Errorf("insert %s.%s: %w", table, c, err)
		}
		quoted[i] = quoteIdentifier(c)
		args[i] = v
	}
	sb.Cols(quoted...)
	sb.Values(args...)

	query, built := sb.Build()
	return query, built, nil
}

func buildUpdate(table string, id int64, values core.Record) (string, []interface{}, error) {
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(quoteIdentifier(table))

	cols := sortedColumns(values)
	assignments := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == IDColumn {
			continue
		}
		v, err := encodeValue(values[c])
		if err != nil {
			return "", nil, fmt.Errorf("update %s.%s: %w", table, c, err)
		}
		assignments = append(assignments, sb.Assign(quoteIdentifier(c), v))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal(quoteIdentifier(IDColumn), id))

	query, args := sb.Build()
	return query, args, nil
}

func buildDeletePeriod(d core.PeriodDelete) (string, []interface{}) {
	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(quoteIdentifier(d.Table))
	sb.Where(
		sb.Equal(quoteIdentifier(d.KeyColumn), d.Key),
		sb.Equal("to_char("+quoteIdentifier(d.PeriodColumn)+", 'YYYY-MM')", d.Period),
	)
	return sb.Build()
}

func sortedColumns(values core.Record) []string {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// encodeValue converts engine values to driver parameters.
// Structured lists are stored as JSON documents.
func encodeValue(v any) (any, error) {
	switch t := v.(type) {
	case []core.SubRecord, []map[string]any, core.SubRecord, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// decodeValue converts driver values into the shapes the engine compares.
func decodeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Date:
		if !t.Valid {
			return nil
		}
		return t.Time
	case []byte:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err == nil {
			return decoded
		}
		return string(t)
	default:
		return v
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	default:
		return 0
	}
}

// mapError folds unique violations into core.ErrDuplicateKey so the engine
// can retry a raced create as an update.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s (%s)", core.ErrDuplicateKey, pgErr.Message, pgErr.ConstraintName)
	}
	return err
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
