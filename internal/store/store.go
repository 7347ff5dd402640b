// Package store reads and writes record tables as CSV.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ppiankov/rulelabel/internal/model"
)

// Column names of the source table
const (
	ColumnID       = "ID"
	ColumnField    = "Field"
	ColumnCitation = "Citation"
	ColumnTitle    = "Title"
	ColumnAbstract = "Abstract"
)

// RequiredColumns must be present in every input table
var RequiredColumns = []string{ColumnField, ColumnCitation, ColumnTitle, ColumnAbstract}

// IdentityConflictError is returned when an input table repeats an identifier
type IdentityConflictError = model.IdentityConflictError

// MissingColumnsError lists required columns absent from the header
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// ErrEmptyTable is returned for input without a header row
var ErrEmptyTable = errors.New("table has no header row")

// LoadOptions controls how a table is read
type LoadOptions struct {
	// IDBase is added to the 0-based row index when the table has no ID column
	IDBase int
	// Name identifies the input in errors
	Name string
}

// WriteOptions controls how a table is written
type WriteOptions struct {
	BOM       bool // Prefix the output with a UTF-8 byte-order mark
	RuleCount int  // Minimum number of rule columns; 0 means model.RuleCount
}

// ReadTable loads a table. A leading byte-order mark is ignored. Existing ruleN
// columns are read back as labels; other unknown columns are carried in Record.Extra.
func ReadTable(r io.Reader, opts LoadOptions) (*model.ResultTable, error) {
	name := opts.Name
	if name == "" {
		name = "input"
	}

	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	layout, err := newLayout(header)
	if err != nil {
		return nil, err
	}

	table := &model.ResultTable{Header: layout.outputHeader()}
	seen := make(map[int]int)

	for line := 1; ; line++ {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		row, err := layout.row(cells, line-1+opts.IDBase)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, line, err)
		}

		if first, dup := seen[row.Record.ID]; dup {
			return nil, &IdentityConflictError{ID: row.Record.ID, Source: name, Rows: []int{first, line}}
		}
		seen[row.Record.ID] = line
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// WriteTable writes the source columns followed by rule1..ruleN, where N is
// the larger of the configured rule count and the highest rule present.
func WriteTable(w io.Writer, table *model.ResultTable, opts WriteOptions) error {
	out := w
	var encoder *transform.Writer
	if opts.BOM {
		encoder = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		out = encoder
	}

	ruleCount := opts.RuleCount
	if ruleCount <= 0 {
		ruleCount = model.RuleCount
	}
	if n := table.MaxRule(); n > ruleCount {
		ruleCount = n
	}

	header := table.Header
	if len(header) == 0 {
		header = []string{ColumnID, ColumnField, ColumnCitation, ColumnTitle, ColumnAbstract}
	}
	rules := model.RuleNames(ruleCount)

	writer := csv.NewWriter(out)
	if err := writer.Write(append(append([]string(nil), header...), rules...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	cells := make([]string, 0, len(header)+len(rules))
	for _, row := range table.Rows {
		cells = cells[:0]
		for _, col := range header {
			cells = append(cells, cell(row.Record, col))
		}
		for _, rule := range rules {
			cells = append(cells, string(row.Labels.Get(rule)))
		}
		if err := writer.Write(cells); err != nil {
			return fmt.Errorf("write row %d: %w", row.Record.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if encoder != nil {
		return encoder.Close()
	}
	return nil
}

// ReadFile opens and reads one table
func ReadFile(path string, opts LoadOptions) (*model.ResultTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if opts.Name == "" {
		opts.Name = path
	}
	return ReadTable(f, opts)
}

// WriteFile writes a table through a temporary file in the same directory,
// so an interrupted write never leaves a truncated table behind
func WriteFile(path string, table *model.ResultTable, opts WriteOptions) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := WriteTable(tmp, table, opts); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

func cell(rec model.Record, col string) string {
	switch col {
	case ColumnID:
		return strconv.Itoa(rec.ID)
	case ColumnField:
		return rec.Field
	case ColumnCitation:
		return string(rec.Cohort)
	case ColumnTitle:
		return rec.Title
	case ColumnAbstract:
		return rec.Abstract
	default:
		return rec.Extra[col]
	}
}

// layout maps header positions to record fields
type layout struct {
	header []string
	index  map[string]int
	rules  map[int]string // column position -> rule name
	extra  []int
	hasID  bool
}

func newLayout(header []string) (*layout, error) {
	l := &layout{
		header: make([]string, len(header)),
		index:  make(map[string]int, len(header)),
		rules:  make(map[int]string),
	}

	for i, raw := range header {
		col := strings.TrimSpace(raw)
		l.header[i] = col
		if _, dup := l.index[col]; dup {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		l.index[col] = i

		switch col {
		case ColumnID:
			l.hasID = true
		case ColumnField, ColumnCitation, ColumnTitle, ColumnAbstract:
		default:
			if _, ok := model.RuleIndex(col); ok {
				l.rules[i] = col
			} else {
				l.extra = append(l.extra, i)
			}
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := l.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}
	return l, nil
}

// outputHeader is the source header without rule columns, with ID inserted
// after Citation when the source had none
func (l *layout) outputHeader() []string {
	var out []string
	for i, col := range l.header {
		if _, isRule := l.rules[i]; isRule {
			continue
		}
		out = append(out, col)
		if col == ColumnCitation && !l.hasID {
			out = append(out, ColumnID)
		}
	}
	return out
}

func (l *layout) row(cells []string, defaultID int) (model.ResultRow, error) {
	get := func(col string) string {
		return cells[l.index[col]]
	}

	cohort, err := model.ParseCohort(get(ColumnCitation))
	if err != nil {
		return model.ResultRow{}, err
	}

	id := defaultID
	if l.hasID {
		id, err = parseID(get(ColumnID))
		if err != nil {
			return model.ResultRow{}, err
		}
	}

	rec := model.Record{
		ID:       id,
		Field:    get(ColumnField),
		Cohort:   cohort,
		Title:    get(ColumnTitle),
		Abstract: get(ColumnAbstract),
	}
	if len(l.extra) > 0 {
		rec.Extra = make(map[string]string, len(l.extra))
		for _, i := range l.extra {
			rec.Extra[l.header[i]] = cells[i]
		}
	}

	labels := model.RuleLabel{}
	for i, rule := range l.rules {
		if v := model.ParseVerdict(cells[i]); v.IsSet() {
			labels[rule] = v
		}
	}

	return model.ResultRow{Record: rec, Labels: labels}, nil
}

// maxFloatID is the largest integer a float64 holds exactly
const maxFloatID = 1 << 53

// parseID accepts integers and integral floats ("12.0" from spreadsheet exports)
func parseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.Atoi(s); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid identifier %q", s)
	}
	if math.Abs(f) > maxFloatID {
		return 0, fmt.Errorf("identifier %q out of range", s)
	}
	return int(f), nil
}
