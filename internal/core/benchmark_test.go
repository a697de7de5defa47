package core

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Conversion Function Benchmarks
// ============================================================================

// BenchmarkParseNumber benchmarks numeric cell parsing.
// This is a hot path for payroll amounts.
func BenchmarkParseNumber(b *testing.B) {
	testCases := []string{
		"123",
		"-456.78",
		"1,234.56",
		"  999.99  ",
		"1,234,567.89",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseNumber(tc)
		}
	}
}

// BenchmarkParseDate benchmarks date cell parsing across accepted layouts.
func BenchmarkParseDate(b *testing.B) {
	testCases := []string{
		"2024-01-15",
		"2024/01/15",
		"2024年01月15日",
		"2024-01-15 08:30:00",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseDate(tc)
		}
	}
}

// BenchmarkParsePeriod benchmarks month parsing for periodic entities.
func BenchmarkParsePeriod(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParsePeriod("2024-06")
	}
}

// BenchmarkCleanCell benchmarks cell whitespace cleanup.
func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"simple",
		"  padded  ",
		"\ufeffwith bom",
		"全角　空格",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			CleanCell(tc)
		}
	}
}

// ============================================================================
// Header and Ingest Benchmarks
// ============================================================================

// BenchmarkMakeHeaderIndex benchmarks header index creation for a wide file.
func BenchmarkMakeHeaderIndex(b *testing.B) {
	header := make([]string, 60)
	for i := range header {
		header[i] = fmt.Sprintf("Column_%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MakeHeaderIndex(header)
	}
}

// BenchmarkReadTableFrom_CSV benchmarks ingesting a 1000-row file.
func BenchmarkReadTableFrom_CSV(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("Name,City,Joined,A,B\n")
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "Person %d,Oslo,2024-01-%02d,%d.50,%d\n", i, i%28+1, i, i*2)
	}
	data := []byte(sb.String())

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ReadTableFrom(bytes.NewReader(data), "people.csv"); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Validation and Merge Benchmarks
// ============================================================================

// BenchmarkValidateRows benchmarks typing and checking mapped rows.
func BenchmarkValidateRows(b *testing.B) {
	s := peopleSchema()
	rows := make([]Row, 1000)
	for i := range rows {
		rows[i] = Row{Line: i + 2, Values: Record{
			"name":   fmt.Sprintf("Person %d", i),
			"joined": "2024-03-15",
			"active": "yes",
			"a":      "12.5",
			"b":      "7",
		}}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateRows(rows, s)
	}
}

// BenchmarkBuildUpdate benchmarks merging a row into a stored entity with
// list accumulation and a derived total.
func BenchmarkBuildUpdate(b *testing.B) {
	s := peopleSchema()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	existing := Record{
		"name":     "Ann",
		"city":     "Oslo",
		"a":        10.0,
		"b":        5.0,
		"total":    15.0,
		"contacts": []SubRecord{{"name": "Bo", "phone": "123"}},
	}
	row := Row{Line: 2, Values: Record{
		"name":         "Ann",
		"city":         "Bergen",
		"a":            20.0,
		"contactName":  "Cy",
		"contactPhone": "456",
	}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildUpdate(s, existing, row, now)
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

// BenchmarkParseNumberParallel benchmarks numeric parsing under concurrency.
func BenchmarkParseNumberParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ParseNumber("1,234,567.89")
		}
	})
}

// BenchmarkParseDateParallel benchmarks date parsing under concurrency.
func BenchmarkParseDateParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ParseDate("2024年01月15日")
		}
	})
}
