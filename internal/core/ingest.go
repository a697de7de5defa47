package core

// ingest.go reads tabular files into a Table of opaque text cells.
//
// Delimited files are decoded with the first encoding in the fallback chain
// that yields at least one column and one data row. Workbooks (.xlsx, .xlsm)
// are read from their first sheet via excelize. Every cell stays text; typing
// happens later in the row validator.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxFileSize is the maximum accepted input size (100MB).
var MaxFileSize int64 = 100 * 1024 * 1024

var (
	errEmptyTable    = errors.New("empty file: no header or data rows")
	errNoColumns     = errors.New("no columns found")
	errFileTooLarge  = errors.New("file too large")
	errLegacyExcel   = errors.New("legacy .xls workbooks are not supported; save the file as .xlsx or .csv")
	supportedFormats = []string{".csv", ".txt", ".xlsx", ".xlsm"}
)

// ReadTable opens a file by path and ingests it.
func ReadTable(path string, encodings ...string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SetupError{Type: ErrTypeFileNotFound, Err: fmt.Errorf("file not found: %s", path)}
		}
		return nil, &FileReadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &FileReadError{Path: path, Err: errors.New("path is a directory")}
	}
	if info.Size() > MaxFileSize {
		return nil, &FileReadError{Path: path, Err: fmt.Errorf("%w: %d bytes exceeds %d", errFileTooLarge, info.Size(), MaxFileSize)}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	defer f.Close()

	return ReadTableFrom(f, filepath.Base(path), encodings...)
}

// ReadTableFrom ingests a file from a reader. The name's extension selects
// the format.
func ReadTableFrom(r io.Reader, name string, encodings ...string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(name))

	switch ext {
	case ".csv", ".txt":
		data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
		if err != nil {
			return nil, &FileReadError{Path: name, Err: err}
		}
		if int64(len(data)) > MaxFileSize {
			return nil, &FileReadError{Path: name, Err: errFileTooLarge}
		}
		return readDelimited(data, name, encodings)
	case ".xlsx", ".xlsm":
		return readWorkbook(r, name)
	case ".xls":
		return nil, &FileReadError{Path: name, Err: errLegacyExcel}
	default:
		return nil, &SetupError{
			Type: ErrTypeUnsupportedFormat,
			Err:  fmt.Errorf("unsupported file format %q (supported: %s)", ext, strings.Join(supportedFormats, ", ")),
		}
	}
}

// readDelimited tries each encoding until one yields a usable table.
func readDelimited(data []byte, name string, encodings []string) (*Table, error) {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}

	decoders := make([]textDecoder, 0, len(encodings)+1)
	if d, ok := utf16Decoder(data); ok {
		decoders = append(decoders, d)
	}
	for _, name := range encodings {
		d, ok := decoderFor(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return nil, &SetupError{Type: ErrTypeInvalidRequest, Err: fmt.Errorf("unknown encoding %q", name)}
		}
		decoders = append(decoders, d)
	}

	tried := make([]string, 0, len(decoders))
	var lastErr error
	for _, d := range decoders {
		tried = append(tried, d.Name)

		text, err := d.Decode(data)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", d.Name, err)
			continue
		}

		table, err := parseDelimited(text)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", d.Name, err)
			continue
		}

		table.Name = name
		table.Encoding = d.Name
		return table, nil
	}

	return nil, &FileReadError{Path: name, Tried: tried, Err: lastErr}
}

// parseDelimited splits decoded text into header and data rows.
// Line numbers come from the CSV reader so blank lines keep their offsets.
func parseDelimited(text []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		table     Table
		headerSet bool
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := r.FieldPos(0)

		if !headerSet {
			table.Header = cleanHeader(rec)
			headerSet = true
			continue
		}
		if row, ok := buildRawRow(rec, line); ok {
			table.Rows = append(table.Rows, row)
		}
	}
	if !headerSet {
		return nil, errEmptyTable
	}

	return checkTable(&table)
}

// readWorkbook reads the first sheet of an xlsx workbook.
func readWorkbook(r io.Reader, name string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FileReadError{Path: name, Err: err}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &FileReadError{Path: name, Err: errors.New("workbook has no sheets")}
	}

	// Raw values keep date cells as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &FileReadError{Path: name, Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}

	table := Table{Name: name, Encoding: "xlsx"}
	headerSet := false
	for i, rec := range rows {
		if !headerSet {
			if isEmptyRecord(rec) {
				continue
			}
			table.Header = cleanHeader(rec)
			headerSet = true
			continue
		}
		if row, ok := buildRawRow(rec, i+1); ok {
			table.Rows = append(table.Rows, row)
		}
	}

	if !headerSet {
		return nil, &FileReadError{Path: name, Err: errEmptyTable}
	}

	t, err := checkTable(&table)
	if err != nil {
		return nil, &FileReadError{Path: name, Err: err}
	}
	return t, nil
}

func checkTable(t *Table) (*Table, error) {
	if len(t.Header) == 0 {
		return nil, errNoColumns
	}
	if len(t.Rows) == 0 {
		return nil, errEmptyTable
	}
	return t, nil
}

func cleanHeader(rec []string) []string {
	header := make([]string, len(rec))
	for i, h := range rec {
		header[i] = CleanCell(h)
	}
	// Trailing empty headers come from formatted-but-unused spreadsheet columns.
	for len(header) > 0 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	return header
}

// buildRawRow normalizes cells; all-blank rows are dropped.
func buildRawRow(rec []string, line int) (RawRow, bool) {
	if isEmptyRecord(rec) {
		return RawRow{}, false
	}
	values := make([]any, len(rec))
	for i, cell := range rec {
		values[i] = NormalizeCell(cell)
	}
	return RawRow{Line: line, Values: values}, true
}

func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if NormalizeCell(v) != nil {
			return false
		}
	}
	return true
}
