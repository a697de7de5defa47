package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/google/uuid"
)

// BatchTimeout is the default maximum duration of one batch.
var BatchTimeout = 10 * time.Minute

// Options configures an Engine.
type Options struct {
	Logger  *slog.Logger
	Level   slog.Level       // Minimum level for engine diagnostics
	Now     func() time.Time // Clock; time.Now when nil
	Limiter *BatchLimiter    // Optional concurrency control
	Timeout time.Duration    // Per-batch timeout; BatchTimeout when zero
}

// Engine runs import batches against a store.
type Engine struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	limiter *BatchLimiter
	timeout time.Duration
}

// NewEngine creates an engine writing to store.
func NewEngine(store Store, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = BatchTimeout
	}
	return &Engine{
		store:   store,
		logger:  logging.WithLevel(opts.Logger, opts.Level),
		now:     opts.Now,
		limiter: opts.Limiter,
		timeout: opts.Timeout,
	}
}

// ImportRequest describes one batch.
type ImportRequest struct {
	Entity string

	// Either Path or Reader supplies the file. FileName names a Reader's
	// content and selects its format by extension.
	Path     string
	Reader   io.Reader
	FileName string

	// Overwrite replaces (natural key, period) rows of a periodic entity
	// instead of merging into them, and skips the period guard.
	Overwrite bool

	// CreateIfMissing overrides the entity's default when set.
	CreateIfMissing *bool

	// Encodings overrides the delimited-text decoding chain.
	Encodings []string
}

// Import runs the whole pipeline for one batch. It never returns an error:
// batch-fatal problems are reported on the result.
func (e *Engine) Import(ctx context.Context, req ImportRequest) (result *BatchResult) {
	start := e.now()
	batchID := uuid.New().String()

	fileName := req.FileName
	if fileName == "" {
		fileName = filepath.Base(req.Path)
	}

	rep := NewReporter(batchID, req.Entity, fileName, start)
	logger := e.logger.With("batch_id", batchID, "entity", req.Entity)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in import", "panic", r)
			rep.Fatal(fmt.Errorf("internal error: %v", r))
		}
		result = rep.Finish(e.now())
		e.logSummary(logger, result)
	}()

	schema, ok := Get(req.Entity)
	if !ok {
		rep.Fatal(fmt.Errorf("%w: %s", ErrUnknownEntity, req.Entity))
		return
	}
	s := &schema
	rep.setSchema(s)

	if e.limiter != nil {
		release, err := e.limiter.Acquire(ctx, s.Key)
		if err != nil {
			rep.Fatal(err)
			return
		}
		defer release()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	table, err := e.readTable(req, fileName)
	if err != nil {
		rep.Fatal(err)
		return
	}
	res := rep.Result()
	res.TotalRows = len(table.Rows)
	res.Encoding = table.Encoding

	mapped, err := MapRows(table, s)
	if err != nil {
		rep.Fatal(err)
		return
	}
	res.MissingColumns = mapped.MissingColumns
	if len(mapped.Unmapped) > 0 {
		rep.Warn("ignored column(s): " + strings.Join(mapped.Unmapped, ", "))
	}
	logger.Debug("columns mapped",
		"rows", len(mapped.Rows),
		"missing", mapped.MissingColumns,
		"unmapped", mapped.Unmapped,
	)

	valid, invalid := ValidateRows(mapped.Rows, s)
	rep.Invalid(invalid)

	if s.Periodic() {
		res.ExpectedPeriod = ExpectedPeriod(start)
		if req.Overwrite {
			rep.Warn("overwrite: period check skipped")
		} else if err := CheckPeriods(valid, s, res.ExpectedPeriod); err != nil {
			var mismatch *PeriodMismatchError
			if errors.As(err, &mismatch) {
				rep.PeriodRejected(len(valid), mismatch)
			}
			rep.Fatal(err)
			return
		}
	} else if req.Overwrite {
		rep.Warn("overwrite ignored: entity is not periodic")
	}

	createIfMissing := s.CreateIfMissing
	if req.CreateIfMissing != nil {
		createIfMissing = *req.CreateIfMissing
	}

	plan, err := ResolveKeys(ctx, e.store, s, valid, ResolveOptions{
		CreateIfMissing: createIfMissing,
		Overwrite:       req.Overwrite,
	})
	if err != nil {
		rep.Fatal(&SetupError{Type: ErrTypeDatabase, Err: err})
		return
	}

	for _, r := range plan.Resolutions {
		if err := ctx.Err(); err != nil {
			rep.Failed(r.Row, err)
			continue
		}

		logger.Debug("row classified",
			"row", r.Row.Line,
			"key", r.Identity,
			"action", r.Action.String(),
		)

		switch r.Action {
		case ActionSkip:
			e.applySkip(ctx, s, plan, r, rep, logger)
		case ActionReject:
			rep.Rejected(r.Row, r.Reason)
		case ActionCreate:
			e.applyCreate(ctx, s, plan, r, rep, logger)
		case ActionUpdate:
			e.applyUpdate(ctx, s, plan, r, rep, logger)
		}
	}

	return
}

func (e *Engine) readTable(req ImportRequest, fileName string) (*Table, error) {
	if req.Reader != nil {
		return ReadTableFrom(req.Reader, fileName, req.Encodings...)
	}
	if req.Path == "" {
		return nil, &SetupError{Type: ErrTypeInvalidRequest, Err: errors.New("no file provided")}
	}
	return ReadTable(req.Path, req.Encodings...)
}

func (e *Engine) applyCreate(ctx context.Context, s *EntitySchema, plan *Plan, r Resolution, rep *Reporter, logger *slog.Logger) {
	now := e.now()
	rec := BuildCreate(s, r.Row, now)

	var id int64
	err := e.withinTx(ctx, func(st Store) error {
		if r.Replace {
			n, err := st.DeleteByPeriod(ctx, PeriodDelete{
				Table:        s.Table,
				KeyColumn:    s.ColumnFor(s.NaturalKey),
				Key:          NaturalKeyOf(s, r.Row.Values),
				PeriodColumn: s.ColumnFor(s.PeriodField),
				Period:       PeriodOf(r.Row.Values[s.PeriodField]),
			})
			if err != nil {
				return fmt.Errorf("delete period rows: %w", err)
			}
			if n > 0 {
				logger.Debug("period rows replaced", "row", r.Row.Line, "deleted", n)
			}
		}
		var err error
		id, err = st.Insert(ctx, s.Table, toColumns(s, rec))
		return err
	})

	if errors.Is(err, ErrDuplicateKey) && !r.Replace {
		// Another writer created the key after our lookup.
		existing, lookupErr := e.refetch(ctx, s, r)
		if lookupErr == nil && existing != nil {
			plan.Known[r.Identity] = existing
			logger.Info("key created concurrently, retrying as update", "row", r.Row.Line, "key", r.Identity)
			if s.OnExisting == ExistingSkip {
				rep.Skipped(r.Row, ReasonKeyExists)
				return
			}
			e.update(ctx, s, existing, r, rep, logger)
			return
		}
	}
	if err != nil {
		logger.Warn("create failed", "row", r.Row.Line, "key", r.Identity, "error", err)
		rep.Failed(r.Row, err)
		return
	}

	plan.Known[r.Identity] = &Entity{ID: id, Fields: rec}
	rep.Created()
	emitAudit(ctx, e.store, s, rec, writtenFields(rec), now, logger)
}

func (e *Engine) applySkip(ctx context.Context, s *EntitySchema, plan *Plan, r Resolution, rep *Reporter, logger *slog.Logger) {
	if r.Pending && plan.Known[r.Identity] == nil {
		// The earlier row with this key failed, so this one creates it.
		r.Action, r.Pending, r.Reason = ActionCreate, false, ""
		e.applyCreate(ctx, s, plan, r, rep, logger)
		return
	}
	rep.Skipped(r.Row, r.Reason)
}

func (e *Engine) applyUpdate(ctx context.Context, s *EntitySchema, plan *Plan, r Resolution, rep *Reporter, logger *slog.Logger) {
	target := r.Existing
	if r.Pending {
		target = plan.Known[r.Identity]
	}
	if target == nil {
		// The row that would have created this key failed; try again here.
		r.Action, r.Pending = ActionCreate, false
		e.applyCreate(ctx, s, plan, r, rep, logger)
		return
	}
	e.update(ctx, s, target, r, rep, logger)
}

func (e *Engine) update(ctx context.Context, s *EntitySchema, target *Entity, r Resolution, rep *Reporter, logger *slog.Logger) {
	now := e.now()
	changes, written := BuildUpdate(s, target.Fields, r.Row, now)

	err := e.withinTx(ctx, func(st Store) error {
		return st.Update(ctx, s.Table, target.ID, toColumns(s, changes))
	})
	if err != nil {
		logger.Warn("update failed", "row", r.Row.Line, "key", r.Identity, "error", err)
		rep.Failed(r.Row, err)
		return
	}

	for k, v := range changes {
		target.Fields[k] = v
	}
	rep.Updated()
	emitAudit(ctx, e.store, s, target.Fields, written, now, logger)
}

// refetch looks up a single identity after a uniqueness violation.
func (e *Engine) refetch(ctx context.Context, s *EntitySchema, r Resolution) (*Entity, error) {
	entities, err := e.store.FindByNaturalKey(ctx, Lookup{
		Table:     s.Table,
		KeyColumn: s.ColumnFor(s.NaturalKey),
		Keys:      []string{NaturalKeyOf(s, r.Row.Values)},
		Columns:   lookupColumns(s),
	})
	if err != nil {
		return nil, err
	}
	for _, ent := range entities {
		fields := fromColumns(s, ent.Fields)
		if Identity(s, fields) == r.Identity {
			return &Entity{ID: ent.ID, Fields: fields}, nil
		}
	}
	return nil, nil
}

func (e *Engine) withinTx(ctx context.Context, fn func(Store) error) error {
	if tx, ok := e.store.(Transactor); ok {
		return tx.WithinTx(ctx, fn)
	}
	return fn(e.store)
}

func (e *Engine) logSummary(logger *slog.Logger, res *BatchResult) {
	attrs := []any{
		"file", res.FileName,
		"total", res.TotalRows,
		"created", res.CreatedCount,
		"updated", res.UpdatedCount,
		"skipped", res.SkippedCount,
		"failed", res.FailedCount,
		"duration_ms", res.DurationMs,
	}
	if res.ErrorType != "" {
		attrs = append(attrs, "error_type", string(res.ErrorType), "error", res.ErrorMessage)
		logger.Error("import aborted", attrs...)
		return
	}
	logger.Info(fmt.Sprintf("import finished: %d created, %d updated, %d skipped, %d failed",
		res.CreatedCount, res.UpdatedCount, res.SkippedCount, res.FailedCount), attrs...)
}

// writtenFields lists the non-blank fields of a created record.
func writtenFields(rec Record) []string {
	names := make([]string, 0, len(rec))
	for k, v := range rec {
		if k == FieldCreatedAt || k == FieldUpdatedAt || IsBlank(v) {
			continue
		}
		names = append(names, k)
	}
	return names
}
