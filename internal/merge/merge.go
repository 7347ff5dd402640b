// Package merge joins classification outcomes back onto source records by ID.
package merge

import (
	"errors"
	"fmt"

	"github.com/ppiankov/rulelabel/internal/model"
	"github.com/ppiankov/rulelabel/internal/parser"
)

// ErrUnknownIdentifier is returned for an outcome whose ID matches no record
var ErrUnknownIdentifier = errors.New("outcome identifier matches no record")

// Merge builds a result table from records and outcomes (left join on ID)
func Merge(records []model.Record, outcomes []model.Outcome) (*model.ResultTable, error) {
	table := &model.ResultTable{Rows: make([]model.ResultRow, len(records))}
	for i, rec := range records {
		table.Rows[i] = model.ResultRow{Record: rec}
	}
	return Into(table, outcomes)
}

// Into returns a copy of table with the outcomes applied. Rows with an outcome
// take its labels (empty for failures); other rows keep their existing labels.
func Into(table *model.ResultTable, outcomes []model.Outcome) (*model.ResultTable, error) {
	index := make(map[int]int, len(table.Rows))
	for i, row := range table.Rows {
		if _, dup := index[row.Record.ID]; dup {
			return nil, &model.IdentityConflictError{ID: row.Record.ID, Source: "records"}
		}
		index[row.Record.ID] = i
	}

	byRow := make(map[int]model.Outcome, len(outcomes))
	for _, o := range outcomes {
		i, ok := index[o.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownIdentifier, o.ID)
		}
		if _, dup := byRow[i]; dup {
			return nil, &model.IdentityConflictError{ID: o.ID, Source: "outcomes"}
		}
		byRow[i] = o
	}

	out := table.Clone()
	for i, o := range byRow {
		out.Rows[i].Labels = Labels(o)
	}
	return out, nil
}

// Labels resolves the rule labels of one outcome: explicit labels first, then the
// parsed raw response. Failed outcomes have none.
func Labels(o model.Outcome) model.RuleLabel {
	if o.Failed() {
		return model.RuleLabel{}
	}
	if !o.Labels.Empty() {
		return o.Labels.Clone()
	}
	if o.HasResponse() {
		return parser.Parse(o.RawResponse)
	}
	return model.RuleLabel{}
}
