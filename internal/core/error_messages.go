// Package core provides the reconciliation engine for spreadsheet imports.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// Every failed record and every failed batch carries one of these codes, so
// operators can quote it when asking for help.
//
// Error codes are grouped by category:
//
// # Key Errors (KEY001-KEY099)
//
// Errors raised by the key resolver:
//
//	KEY001 - Key not found: No stored record has this natural key
//	         Action: Import the record with the full customer file first
//	         Patterns: "natural key not found", "no record for this natural key"
//
//	KEY002 - Duplicate key: A record with this natural key already exists
//	         Action: Use the update import to change existing records
//	         Patterns: "natural key already exists"
//
// # Database Errors (DB001-DB099)
//
// Errors related to database operations and constraints:
//
//	DB001 - Duplicate key: A record with this key already exists
//	        Action: Review the failed rows for duplicates
//	        Patterns: "duplicate key"
//
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Action: Check for duplicate entries in your file
//	        Patterns: "unique constraint", "violates unique"
//
//	DB003 - Foreign key: Referenced record does not exist
//	        Action: Ensure parent records are imported first
//	        Patterns: "foreign key constraint", "violates foreign key"
//
//	DB004 - Connection refused: Unable to connect to database
//	        Action: Please try again in a few moments
//	        Patterns: "connection refused"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Action: Please try again
//	        Patterns: "connection reset"
//
//	DB006 - Timeout: Operation timed out
//	        Action: Try importing a smaller file or try again later
//	        Patterns: "timeout"
//
//	DB007 - Deadlock: Database was busy with conflicting operations
//	        Action: Please try again
//	        Patterns: "deadlock"
//
// # Validation Errors (VAL001-VAL099)
//
// Errors related to data validation and format checking:
//
//	VAL001 - Invalid date: Invalid date format detected
//	         Action: Use YYYY-MM-DD, YYYY/MM/DD or YYYY年MM月DD日
//	         Patterns: "invalid date"
//
//	VAL002 - Invalid number: Invalid number format detected
//	         Action: Use plain digits with an optional decimal point
//	         Patterns: "invalid number"
//
//	VAL003 - Required field: Required field is empty
//	         Action: Ensure all required columns have values
//	         Patterns: "required field"
//
//	VAL004 - Missing column: Required column is missing from the file
//	         Action: Check that all required columns are present in your file
//	         Patterns: "missing required column"
//
//	VAL005 - Column not found: Expected column not found in the file
//	         Action: Verify column headers match the template exactly
//	         Patterns: "column not found", "no columns found"
//
//	VAL006 - Invalid enum: Value is not in the allowed list
//	         Action: Check the allowed values for this field
//	         Patterns: "invalid enum"
//
//	VAL007 - Period mismatch: The file contains rows for another month
//	         Action: Import only last month's data, or use overwrite for a correction
//	         Patterns: "period mismatch"
//
//	VAL008 - Invalid boolean: Invalid yes/no value detected
//	         Action: Use 是/否, yes/no or 1/0
//	         Patterns: "invalid boolean"
//
// # File Errors (FILE001-FILE099)
//
// Errors related to file handling and parsing:
//
//	FILE001 - File too large: File exceeds maximum size limit (100MB)
//	          Action: Split the file into smaller chunks
//	          Patterns: "file too large"
//
//	FILE002 - Invalid CSV: File is not a valid CSV
//	          Action: Ensure file is comma-separated with consistent columns
//	          Patterns: "invalid csv"
//
//	FILE003 - Encoding error: File contains invalid characters
//	          Action: Save the file as UTF-8 or GBK
//	          Patterns: "encoding error", "unable to read file" (checked last)
//
//	FILE004 - No file: No file was selected
//	          Action: Please select a file to import
//	          Patterns: "no file provided", "file not found"
//
//	FILE005 - Empty file: The file is empty
//	          Action: Please import a file with data rows
//	          Patterns: "empty file"
//
//	FILE006 - Unsupported format: File type is not supported
//	          Action: Save the file as .xlsx or .csv
//	          Patterns: "unsupported file format", "legacy .xls"
//
// # Import Errors (IMP001-IMP099)
//
// Errors related to the import process:
//
//	IMP001 - Import in progress: Another import of this entity is running
//	         Action: Wait for the running import to finish
//	         Patterns: "import already in progress"
//
//	IMP002 - System busy: Too many imports in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many imports"
//
//	IMP003 - Request cancelled: Request was cancelled
//	         Action: Please try again
//	         Patterns: "context canceled"
//
//	IMP004 - Request timeout: Request timed out
//	         Action: Try importing a smaller file or check your connection
//	         Patterns: "context deadline exceeded"
//
// # Entity Errors (ENT001-ENT099)
//
//	ENT001 - Unknown entity: Entity type is not configured
//	         Action: Run the entities command to list configured entities
//	         Patterns: "unknown entity"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern maps any of several lower-case substrings to one message.
type errorPattern struct {
	patterns []string
	msg      UserMessage
}

func match(code, message, action string, patterns ...string) errorPattern {
	return errorPattern{patterns: patterns, msg: UserMessage{Message: message, Action: action, Code: code}}
}

// errorPatterns is searched in order; the first entry with a matching
// substring wins, so specific entries come before general ones. New
// entries also belong in the package documentation above.
var errorPatterns = []errorPattern{
	// Key resolution
	match("KEY001", "No stored record has this natural key", "Import the record with the full customer file first",
		"natural key not found", "no record for this natural key"),
	match("KEY002", "A record with this natural key already exists", "Use the update import to change existing records",
		"natural key already exists"),

	// Database constraints
	match("DB001", "A record with this key already exists", "Review the failed rows for duplicates",
		"duplicate key"),
	match("DB002", "This value must be unique but already exists", "Check for duplicate entries in your file",
		"unique constraint", "violates unique"),
	match("DB003", "Referenced record does not exist", "Ensure parent records are imported first",
		"foreign key constraint", "violates foreign key"),

	// Database connectivity
	match("DB004", "Unable to connect to database", "Please try again in a few moments",
		"connection refused"),
	match("DB005", "Database connection was interrupted", "Please try again",
		"connection reset"),
	match("DB006", "Operation timed out", "Try importing a smaller file or try again later",
		"timeout"),
	match("DB007", "Database was busy with conflicting operations", "Please try again",
		"deadlock"),

	// Row and header validation
	match("VAL001", "Invalid date format detected", "Use YYYY-MM-DD, YYYY/MM/DD or YYYY年MM月DD日",
		"invalid date"),
	match("VAL002", "Invalid number format detected", "Use plain digits with an optional decimal point",
		"invalid number"),
	match("VAL003", "Required field is empty", "Ensure all required columns have values",
		"required field"),
	match("VAL004", "Required column is missing from the file", "Check that all required columns are present in your file",
		"missing required column"),
	match("VAL005", "Expected column not found in the file", "Verify column headers match the template exactly",
		"column not found", "no columns found"),
	match("VAL006", "Value is not in the allowed list", "Check the allowed values for this field",
		"invalid enum"),
	match("VAL007", "The file contains rows for another month", "Import only last month's data, or use overwrite for a correction",
		"period mismatch"),
	match("VAL008", "Invalid yes/no value detected", "Use 是/否, yes/no or 1/0",
		"invalid boolean"),

	// Files. "unable to read file" is generic and stays last in this group.
	match("FILE001", "File exceeds maximum size limit (100MB)", "Split the file into smaller chunks",
		"file too large"),
	match("FILE002", "File is not a valid CSV", "Ensure file is comma-separated with consistent columns",
		"invalid csv"),
	match("FILE003", "File contains invalid characters", "Save the file as UTF-8 or GBK",
		"encoding error"),
	match("FILE004", "No file was selected", "Please select a file to import",
		"no file provided"),
	match("FILE004", "File was not found", "Check the file path and try again",
		"file not found"),
	match("FILE005", "The file is empty", "Please import a file with data rows",
		"empty file"),
	match("FILE006", "File type is not supported", "Save the file as .xlsx or .csv",
		"unsupported file format", "legacy .xls"),
	match("FILE003", "File contains invalid characters", "Save the file as UTF-8 or GBK",
		"unable to read file"),

	// Batch admission and cancellation
	match("IMP001", "Another import of this entity is running", "Wait for the running import to finish",
		"import already in progress"),
	match("IMP002", "System is busy processing other imports", "Please wait a moment and try again",
		"too many imports"),
	match("IMP003", "Request was cancelled", "Please try again",
		"context canceled"),
	match("IMP004", "Request timed out", "Try importing a smaller file or check your connection",
		"context deadline exceeded"),

	match("ENT001", "Unknown entity type", "Run the entities command to list configured entities",
		"unknown entity"),
	match("RATE001", "Too many requests", "Please wait a moment before trying again",
		"rate limit"),
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check the logs for the original error when users
// report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Matching is case-insensitive; a nil error yields the zero UserMessage.
//
// Example:
//
//	err := errors.New("natural key not found in store")
//	msg := MapError(err)
//	// msg.Code == "KEY001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		for _, p := range ep.patterns {
			if strings.Contains(errStr, p) {
				return ep.msg
			}
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "Operation timed out (Code: DB006). Try importing a smaller file or try again later"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
