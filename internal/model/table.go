package model

// ResultTable is the unit of persistence: source records joined with rule labels
type ResultTable struct {
	Header []string    // Source columns in output order (rule columns excluded)
	Rows   []ResultRow // One row per source record, in source order
}

// ResultRow pairs a record with its (possibly empty) labels
type ResultRow struct {
	Record Record
	Labels RuleLabel
}

// Unlabeled returns records that carry no rule verdict yet
func (t *ResultTable) Unlabeled() []Record {
	var records []Record
	for _, row := range t.Rows {
		if row.Labels.Empty() {
			records = append(records, row.Record)
		}
	}
	return records
}

// Labels returns the labels of rows with content in the cohort.
// An empty cohort matches every row.
func (t *ResultTable) Labels(cohort Cohort) []RuleLabel {
	var labels []RuleLabel
	for _, row := range t.Rows {
		if !row.Record.HasContent() {
			continue
		}
		if cohort == "" || row.Record.Cohort == cohort {
			labels = append(labels, row.Labels)
		}
	}
	return labels
}

// MaxRule returns the highest rule index present in any row
func (t *ResultTable) MaxRule() int {
	highest := 0
	for _, row := range t.Rows {
		if n := row.Labels.MaxRule(); n > highest {
			highest = n
		}
	}
	return highest
}

// Clone returns a deep copy of the table
func (t *ResultTable) Clone() *ResultTable {
	out := &ResultTable{
		Header: append([]string(nil), t.Header...),
		Rows:   make([]ResultRow, len(t.Rows)),
	}
	for i, row := range t.Rows {
		rec := row.Record
		if row.Record.Extra != nil {
			rec.Extra = make(map[string]string, len(row.Record.Extra))
			for k, v := range row.Record.Extra {
				rec.Extra[k] = v
			}
		}
		out.Rows[i] = ResultRow{Record: rec, Labels: row.Labels.Clone()}
	}
	return out
}
