package core

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// AuditFor builds the history record for a write to entity, or reports false
// when no record is due. A record is due when the write touched at least one
// of the schema's audit key fields and the entity has a display name or a
// natural key. Only the key fields named in written are copied.
func AuditFor(s *EntitySchema, entity Record, written []string, now time.Time) (Record, bool) {
	if s.Audit == nil || len(s.Audit.KeyFields) == 0 {
		return nil, false
	}

	var touched []string
	for _, k := range s.Audit.KeyFields {
		if slices.Contains(written, k) {
			touched = append(touched, k)
		}
	}
	if len(touched) == 0 {
		return nil, false
	}

	display, key := entity[s.DisplayName], entity[s.NaturalKey]
	if IsBlank(display) && IsBlank(key) {
		return nil, false
	}

	rec := Record{
		s.DisplayName:  display,
		s.NaturalKey:   key,
		FieldCreatedAt: now,
		FieldUpdatedAt: now,
	}
	for _, k := range touched {
		rec[k] = entity[k]
	}
	return rec, true
}

// emitAudit appends a history record. Failures are logged and never affect
// the outcome of the entity write.
func emitAudit(ctx context.Context, store Store, s *EntitySchema, entity Record, written []string, now time.Time, logger *slog.Logger) {
	rec, ok := AuditFor(s, entity, written, now)
	if !ok {
		return
	}

	if err := store.InsertAudit(ctx, s.Audit.Table, auditColumns(rec)); err != nil {
		logger.Warn("audit record not written",
			slog.String("entity", s.Key),
			slog.String("natural_key", FormatValue(entity[s.NaturalKey])),
			slog.String("error", err.Error()),
		)
	}
}

func auditColumns(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[SnakeCase(k)] = v
	}
	return out
}
