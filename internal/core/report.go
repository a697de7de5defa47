package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outcome is the per-row result category.
type Outcome string

const (
	OutcomeCreated            Outcome = "created"
	OutcomeUpdated            Outcome = "updated"
	OutcomeSkippedDuplicate   Outcome = "skipped_duplicate"
	OutcomeRejectedValidation Outcome = "rejected_validation"
	OutcomeRejectedKey        Outcome = "rejected_key_not_found"
	OutcomeRejectedPeriod     Outcome = "rejected_period"
	OutcomeFailedPersistence  Outcome = "failed_persistence"
)

// FailedRecord describes one row that was not created or updated.
type FailedRecord struct {
	Row         int      `json:"row"`
	NaturalKey  string   `json:"naturalKey"`
	DisplayName string   `json:"displayName,omitempty"`
	Outcome     Outcome  `json:"outcome"`
	Reason      string   `json:"reason"`
	Reasons     []string `json:"reasons,omitempty"`
	Code        string   `json:"code,omitempty"`
}

// BatchResult is the summary of one import batch.
type BatchResult struct {
	BatchID        string         `json:"batchId"`
	Entity         string         `json:"entity"`
	FileName       string         `json:"fileName,omitempty"`
	Encoding       string         `json:"encoding,omitempty"`
	Success        bool           `json:"success"`
	TotalRows      int            `json:"totalRows"`
	CreatedCount   int            `json:"createdCount"`
	UpdatedCount   int            `json:"updatedCount"`
	SkippedCount   int            `json:"skippedCount"`
	FailedCount    int            `json:"failedCount"`
	FailedRecords  []FailedRecord `json:"failedRecords"`
	MissingColumns []string       `json:"missingColumns,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	ExpectedPeriod string         `json:"expectedPeriod,omitempty"`
	ErrorType      ErrorType      `json:"errorType,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	ErrorCode      string         `json:"errorCode,omitempty"`
	DurationMs     int64          `json:"durationMs"`
}

// ExitCode returns the process exit status for the batch: 0 when the batch
// succeeded or every failure is a skipped duplicate, 1 otherwise.
func (b *BatchResult) ExitCode() int {
	if b.Success {
		return 0
	}
	if b.ErrorType != "" {
		return 1
	}
	if len(b.FailedRecords) == 0 {
		return 1
	}
	for _, f := range b.FailedRecords {
		if f.Outcome != OutcomeSkippedDuplicate {
			return 1
		}
	}
	return 0
}

// Reporter accumulates outcomes for a batch.
type Reporter struct {
	schema *EntitySchema
	result *BatchResult
	start  time.Time
}

// NewReporter starts the result for a batch.
func NewReporter(batchID, entity, fileName string, start time.Time) *Reporter {
	return &Reporter{
		result: &BatchResult{
			BatchID:       batchID,
			Entity:        entity,
			FileName:      fileName,
			FailedRecords: []FailedRecord{},
		},
		start: start,
	}
}

// Result returns the result under construction.
func (r *Reporter) Result() *BatchResult {
	return r.result
}

func (r *Reporter) setSchema(s *EntitySchema) {
	r.schema = s
}

// Created counts a created entity.
func (r *Reporter) Created() {
	r.result.CreatedCount++
}

// Updated counts an updated entity.
func (r *Reporter) Updated() {
	r.result.UpdatedCount++
}

// Skipped records a row left untouched because its key already exists.
func (r *Reporter) Skipped(row Row, reason string) {
	r.result.SkippedCount++
	r.add(row, OutcomeSkippedDuplicate, reason, nil)
}

// Rejected records a row refused by the key resolver.
func (r *Reporter) Rejected(row Row, reason string) {
	r.result.FailedCount++
	r.add(row, OutcomeRejectedKey, reason, nil)
}

// Failed records a row whose write failed.
func (r *Reporter) Failed(row Row, err error) {
	r.result.FailedCount++
	r.add(row, OutcomeFailedPersistence, err.Error(), nil)
}

// Invalid records rows rejected by validation.
func (r *Reporter) Invalid(errs []ValidationError) {
	for _, e := range errs {
		r.result.FailedCount++
		r.result.FailedRecords = append(r.result.FailedRecords, FailedRecord{
			Row:         e.Row,
			NaturalKey:  e.NaturalKey,
			DisplayName: e.DisplayName,
			Outcome:     OutcomeRejectedValidation,
			Reason:      e.Message,
			Reasons:     e.Reasons,
			Code:        MapError(errors.New(e.Message)).Code,
		})
	}
}

// PeriodRejected records a batch refused by the period guard. Every valid
// row counts as failed; the offending rows are listed.
func (r *Reporter) PeriodRejected(valid int, err *PeriodMismatchError) {
	r.result.FailedCount += valid
	code := MapError(err).Code
	for _, m := range err.Rows {
		r.result.FailedRecords = append(r.result.FailedRecords, FailedRecord{
			Row:         m.Row,
			NaturalKey:  m.NaturalKey,
			DisplayName: m.DisplayName,
			Outcome:     OutcomeRejectedPeriod,
			Reason:      "period " + m.Period + " does not match expected period " + err.Expected,
			Code:        code,
		})
	}
}

// Warn adds a batch-level warning.
func (r *Reporter) Warn(msg string) {
	r.result.Warnings = append(r.result.Warnings, msg)
}

// Fatal marks the batch as aborted by err.
func (r *Reporter) Fatal(err error) {
	r.result.ErrorType = Classify(err)
	r.result.ErrorMessage = err.Error()
	r.result.ErrorCode = MapError(err).Code

	var missing *MissingRequiredColumnsError
	if errors.As(err, &missing) {
		r.result.MissingColumns = missing.Columns
	}
}

// FailedBatch builds the result of a batch that never reached the engine,
// such as one whose store was unreachable.
func FailedBatch(entity, fileName string, err error, at time.Time) *BatchResult {
	rep := NewReporter(uuid.New().String(), entity, fileName, at)
	rep.Fatal(err)
	return rep.Finish(at)
}

// Finish stamps the duration and success flag and returns the result.
func (r *Reporter) Finish(now time.Time) *BatchResult {
	res := r.result
	res.DurationMs = now.Sub(r.start).Milliseconds()
	res.Success = res.ErrorType == "" && res.CreatedCount+res.UpdatedCount > 0
	return res
}

func (r *Reporter) add(row Row, outcome Outcome, reason string, reasons []string) {
	rec := FailedRecord{
		Row:     row.Line,
		Outcome: outcome,
		Reason:  reason,
		Reasons: reasons,
		Code:    MapError(errors.New(reason)).Code,
	}
	if r.schema != nil {
		rec.NaturalKey = row.Text(r.schema.NaturalKey)
		rec.DisplayName = row.Text(r.schema.DisplayName)
	}
	r.result.FailedRecords = append(r.result.FailedRecords, rec)
}
