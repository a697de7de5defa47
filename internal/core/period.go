package core

// CheckPeriods enforces that every valid row of a periodic entity belongs to
// the expected period. A single mismatch rejects the whole batch; rows with
// a null period are not compared.
func CheckPeriods(rows []Row, s *EntitySchema, expected string) error {
	if !s.Periodic() {
		return nil
	}

	var mismatches []PeriodMismatch
	for _, row := range rows {
		v := row.Values[s.PeriodField]
		if IsBlank(v) {
			continue
		}
		if p := PeriodOf(v); p != expected {
			mismatches = append(mismatches, PeriodMismatch{
				Row:         row.Line,
				NaturalKey:  row.Text(s.NaturalKey),
				DisplayName: row.Text(s.DisplayName),
				Period:      p,
			})
		}
	}

	if len(mismatches) > 0 {
		return &PeriodMismatchError{Expected: expected, Rows: mismatches}
	}
	return nil
}
