// Package core provides the reconciliation engine for spreadsheet imports.
//
// This package holds all domain logic independent of any transport or
// database. It can be driven by the CLI, the HTTP server, or tests against
// an in-memory store without modification.
//
// # Pipeline
//
// One call to [Engine.Import] processes one file for one entity:
//
//  1. [ReadTable] decodes a CSV or XLSX file into a header and raw rows,
//     trying UTF-8, GBK, GB18030 and Latin-1 in turn for delimited text.
//  2. [MapRows] renames source columns to canonical fields and fails the
//     batch when a required column is missing.
//  3. [ValidateRows] types every cell and collects every reason a row is
//     invalid. Invalid rows are reported and dropped.
//  4. [CheckPeriods] rejects the whole batch of a periodic entity when any
//     row belongs to a month other than the one before the current month.
//  5. [ResolveKeys] fetches existing entities in one store round trip and
//     classifies each row as create, update, skip or reject.
//  6. [BuildCreate] and [BuildUpdate] produce the records written. Updates
//     never erase stored data with blanks, lists only grow, and derived
//     totals are recomputed from the merged state.
//  7. [AuditFor] produces a history record when a write touched one of the
//     entity's key fields.
//  8. The [Reporter] accumulates outcomes into a [BatchResult].
//
// # Entity Registry
//
// Entities are registered at init time using [Register]. Each [EntitySchema]
// carries everything the pipeline needs:
//
//	core.Register(core.EntitySchema{
//	    Key:         "deposit",
//	    Table:       "sys_deposit",
//	    NaturalKey:  "name",
//	    PeriodField: "deductionDate",
//	    Fields: []core.FieldSpec{
//	        {Name: "name", Column: "姓名", RequiredColumn: true},
//	        {Name: "amount", Column: "保证金扣除", Type: core.FieldNumeric, Required: true},
//	        {Name: "deductionDate", Column: "扣除日期", Type: core.FieldDate},
//	    },
//	})
//
// # Persistence
//
// The engine talks to storage through [Store]. Stores that implement
// [Transactor] get one transaction per row, so a failing row never rolls
// back rows already written in the same batch.
//
// # Error Handling
//
// Batch-fatal problems are reported on the result with an [ErrorType];
// per-row problems become failed records. Both carry a support code from
// [MapError].
package core
