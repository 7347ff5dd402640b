package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rulelabel/internal/model"
)

const bom = "\xef\xbb\xbf"

func TestReadTable_AssignsIDsWhenAbsent(t *testing.T) {
	input := "Field,Citation,Title,Abstract\nPhysics,high,T1,first\nBiology,low,T2,\n"

	for _, base := range []int{0, 1} {
		table, err := ReadTable(strings.NewReader(input), LoadOptions{IDBase: base})
		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		assert.Equal(t, base, table.Rows[0].Record.ID)
		assert.Equal(t, base+1, table.Rows[1].Record.ID)
		assert.Equal(t, []string{"Field", "Citation", "ID", "Title", "Abstract"}, table.Header)
	}
}

func TestReadTable_Fields(t *testing.T) {
	input := bom + "Field,Citation,ID,Title,Abstract,DOI,rule1,rule2\n" +
		"Physics,High,7,\"Graphene, revisited\",\"Line one\nline two\",10.1/x,yes,\n"

	table, err := ReadTable(strings.NewReader(input), LoadOptions{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, model.Record{
		ID:       7,
		Field:    "Physics",
		Cohort:   model.CohortHigh,
		Title:    "Graphene, revisited",
		Abstract: "Line one\nline two",
		Extra:    map[string]string{"DOI": "10.1/x"},
	}, row.Record)
	assert.Equal(t, model.RuleLabel{"rule1": model.VerdictYes}, row.Labels)
	assert.Equal(t, []string{"Field", "Citation", "ID", "Title", "Abstract", "DOI"}, table.Header)
}

func TestReadTable_MissingColumns(t *testing.T) {
	_, err := ReadTable(strings.NewReader("Field,Title\nPhysics,T\n"), LoadOptions{})
	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"Citation", "Abstract"}, missing.Missing)
}

func TestReadTable_DuplicateIDs(t *testing.T) {
	input := "Field,Citation,ID,Title,Abstract\nP,high,1,a,x\nP,low,2,b,y\nP,low,1,c,z\n"
	_, err := ReadTable(strings.NewReader(input), LoadOptions{Name: "high.csv"})

	var conflict *IdentityConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.ID)
	assert.Equal(t, []int{1, 3}, conflict.Rows)
	assert.Contains(t, err.Error(), "high.csv")
}

func TestReadTable_RejectsBadValues(t *testing.T) {
	_, err := ReadTable(strings.NewReader("Field,Citation,Title,Abstract\nP,medium,a,x\n"), LoadOptions{})
	assert.ErrorContains(t, err, "unknown cohort")

	_, err = ReadTable(strings.NewReader("Field,Citation,ID,Title,Abstract\nP,high,1.5,a,x\n"), LoadOptions{})
	assert.ErrorContains(t, err, "invalid identifier")

	_, err = ReadTable(strings.NewReader(""), LoadOptions{})
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestParseID(t *testing.T) {
	id, err := parseID(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	id, err = parseID("3.0")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	for _, bad := range []string{"1e30", "-1e30", "2.5", "NaN", "abc"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestWriteTable(t *testing.T) {
	table := &model.ResultTable{
		Header: []string{"Field", "Citation", "ID", "Title", "Abstract", "DOI"},
		Rows: []model.ResultRow{
			{
				Record: model.Record{ID: 1, Field: "Physics", Cohort: model.CohortHigh, Title: "T", Abstract: "a, b", Extra: map[string]string{"DOI": "d"}},
				Labels: model.RuleLabel{"rule1": model.VerdictNo, "rule3": model.VerdictYes},
			},
			{Record: model.Record{ID: 2, Field: "Biology", Cohort: model.CohortLow, Title: "U"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, table, WriteOptions{RuleCount: 3}))

	assert.Equal(t,
		"Field,Citation,ID,Title,Abstract,DOI,rule1,rule2,rule3\n"+
			"Physics,high,1,T,\"a, b\",d,no,,yes\n"+
			"Biology,low,2,U,,,,,\n",
		buf.String())
}

func TestWriteTable_DefaultsTo28Rules(t *testing.T) {
	table := &model.ResultTable{Rows: []model.ResultRow{
		{Record: model.Record{ID: 1, Cohort: model.CohortLow}, Labels: model.RuleLabel{"rule30": model.VerdictYes}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, table, WriteOptions{}))

	header := strings.SplitN(buf.String(), "\n", 2)[0]
	cols := strings.Split(header, ",")
	assert.Equal(t, []string{"ID", "Field", "Citation", "Title", "Abstract"}, cols[:5])
	assert.Len(t, cols, 5+30, "highest rule present widens the table")
}

func TestWriteTable_BOM(t *testing.T) {
	table := &model.ResultTable{Rows: []model.ResultRow{{Record: model.Record{ID: 1, Cohort: model.CohortHigh}}}}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, table, WriteOptions{BOM: true, RuleCount: 1}))
	assert.True(t, strings.HasPrefix(buf.String(), bom+"ID,"))
	assert.Equal(t, 1, strings.Count(buf.String(), bom))
}

func TestRoundTripThroughFile(t *testing.T) {
	input := "Field,Citation,Title,Abstract\nPhysics,high,T1,first\nBiology,low,T2,\n"
	table, err := ReadTable(strings.NewReader(input), LoadOptions{IDBase: 1})
	require.NoError(t, err)
	table.Rows[0].Labels = model.RuleLabel{"rule2": model.VerdictNo}

	path := filepath.Join(t.TempDir(), "out", "labeled.csv")
	require.NoError(t, WriteFile(path, table, WriteOptions{BOM: true}))

	back, err := ReadFile(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, table.Header, back.Header)
	require.Len(t, back.Rows, 2)
	assert.Equal(t, table.Rows[0].Record, back.Rows[0].Record)
	assert.Equal(t, model.RuleLabel{"rule2": model.VerdictNo}, back.Rows[0].Labels)
	assert.True(t, back.Rows[1].Labels.Empty())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain abstract", "plain abstract"},
		{"H<sub>2</sub>O splits <i>water</i>", "H2O splits water"},
		{"<jats:p>First.</jats:p><jats:p>Second &amp; third.</jats:p>", "First. Second & third."},
		{"x < y and y > z", "x < y and y > z"},
		{"We find n<k for all graphs where k>2.", "We find n<k for all graphs where k>2."},
		{"Samples with T<Tc and T>Tc were compared.", "Samples with T<Tc and T>Tc were compared."},
		{"The effect was significant (p < 0.05).", "The effect was significant (p < 0.05)."},
		{"<i>n</i><k for all graphs where k>2", "n<k for all graphs where k>2"},
		{"<jats:sec id=\"s1\"><jats:title>Aim</jats:title>p < 0.05</jats:sec>", "Aim p < 0.05"},
		{"Keep  spacing\nand &amp; entities", "Keep  spacing\nand &amp; entities"},
		{"<sub>2</sub> and an open <tag", "2 and an open <tag"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlainText(tt.in), tt.in)
	}
}
