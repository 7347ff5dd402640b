package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rulelabel/internal/model"
)

func labels(pairs ...string) model.RuleLabel {
	out := model.RuleLabel{}
	for i := 0; i+1 < len(pairs); i += 2 {
		out[pairs[i]] = model.Verdict(pairs[i+1])
	}
	return out
}

func TestDefaultGraph(t *testing.T) {
	g := DefaultGraph()
	edges := g.Edges()
	require.Len(t, edges, 3+5+1+1+8+2+1)

	assert.Equal(t, Edge{Source: "rule1", Target: "rule2", Kind: PropagateNo}, edges[0])
	assert.Contains(t, edges, Edge{Source: "rule6", Target: "rule7", Kind: PropagateYes})
	assert.Contains(t, edges, Edge{Source: "rule17", Target: "rule27", Kind: PropagateNo})
	assert.Contains(t, edges, Edge{Source: "rule25", Target: "rule28", Kind: PropagateNo})

	// No-edges come first in rule order, then the yes-edges
	var order []string
	for _, e := range edges {
		if len(order) == 0 || order[len(order)-1] != e.Source {
			order = append(order, e.Source)
		}
	}
	assert.Equal(t, []string{"rule1", "rule5", "rule11", "rule13", "rule17", "rule25", "rule6"}, order)
	assert.Equal(t, PropagateYes, edges[len(edges)-1].Kind)

	edges[0].Target = "rule9"
	assert.Equal(t, "rule2", g.Edges()[0].Target, "Edges returns a copy")
}

func TestNormalize_Rule1NoPropagates(t *testing.T) {
	n := New(nil, FixedPoint)
	out, err := n.NormalizeLabels(labels("rule1", "no", "rule2", "yes"))
	require.NoError(t, err)

	for _, r := range []string{"rule2", "rule3", "rule4"} {
		assert.Equal(t, model.VerdictNo, out[r], r)
	}
}

func TestNormalize_Rule6YesPropagates(t *testing.T) {
	n := New(nil, FixedPoint)
	out, err := n.NormalizeLabels(labels("rule6", "yes", "rule7", "no"))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictYes, out["rule7"])
}

func TestNormalize_YesOnNoEdgeDoesNothing(t *testing.T) {
	n := New(nil, FixedPoint)
	in := labels("rule1", "yes", "rule2", "no")
	out, err := n.NormalizeLabels(in)
	require.NoError(t, err)
	assert.True(t, out.Equal(in))
}

func TestNormalize_UnsetDoesNotFire(t *testing.T) {
	n := New(nil, FixedPoint)
	out, err := n.NormalizeLabels(labels("rule2", "yes", "rule6", ""))
	require.NoError(t, err)
	assert.Equal(t, labels("rule2", "yes"), out)
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	n := New(nil, FixedPoint)
	in := labels("rule1", "no")
	_, err := n.NormalizeLabels(in)
	require.NoError(t, err)
	assert.Equal(t, labels("rule1", "no"), in)
}

func TestNormalize_Rule5NoBeatsRule6Yes(t *testing.T) {
	n := New(nil, FixedPoint)
	out, err := n.NormalizeLabels(labels("rule5", "no", "rule6", "yes"))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNo, out["rule6"])
	assert.Equal(t, model.VerdictNo, out["rule7"])
}

func TestNormalize_Idempotent(t *testing.T) {
	rows := []model.RuleLabel{
		labels("rule1", "no", "rule5", "no", "rule17", "no", "rule25", "no"),
		labels("rule1", "yes", "rule6", "yes", "rule11", "no", "rule13", "no"),
		labels("rule5", "yes", "rule6", "yes", "rule7", "no"),
		{},
	}
	for _, mode := range []Mode{FixedPoint, SinglePass} {
		n := New(nil, mode)
		for _, row := range rows {
			once, err := n.NormalizeLabels(row)
			require.NoError(t, err)
			twice, err := n.NormalizeLabels(once)
			require.NoError(t, err)
			assert.True(t, once.Equal(twice), "mode %s row %v", mode, row)
		}
	}
}

func chainGraph(t *testing.T) *Graph {
	t.Helper()
	// Declared in reverse so one pass cannot reach rule3
	g, err := NewGraph([]Edge{
		{Source: "rule2", Target: "rule3", Kind: PropagateNo},
		{Source: "rule1", Target: "rule2", Kind: PropagateNo},
	})
	require.NoError(t, err)
	return g
}

func TestNormalize_SinglePassVersusFixedPoint(t *testing.T) {
	g := chainGraph(t)
	in := labels("rule1", "no")

	single, err := New(g, SinglePass).NormalizeLabels(in)
	require.NoError(t, err)
	assert.Equal(t, labels("rule1", "no", "rule2", "no"), single)

	fixed, err := New(g, FixedPoint).NormalizeLabels(in)
	require.NoError(t, err)
	assert.Equal(t, labels("rule1", "no", "rule2", "no", "rule3", "no"), fixed)
}

func TestNewGraph_RejectsCycle(t *testing.T) {
	_, err := NewGraph([]Edge{
		{Source: "rule1", Target: "rule2", Kind: PropagateNo},
		{Source: "rule2", Target: "rule3", Kind: PropagateYes},
		{Source: "rule3", Target: "rule1", Kind: PropagateNo},
	})
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"rule1", "rule2", "rule3", "rule1"}, cycle.Path)
	assert.Contains(t, err.Error(), "rule1 -> rule2 -> rule3 -> rule1")
}

func TestNewGraph_RejectsSelfLoop(t *testing.T) {
	_, err := NewGraph([]Edge{{Source: "rule4", Target: "rule4", Kind: PropagateNo}})
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
}

func TestNewGraph_Validation(t *testing.T) {
	_, err := NewGraph([]Edge{{Source: "rule0", Target: "rule2"}})
	assert.Error(t, err)
	_, err = NewGraph([]Edge{{Source: "rule1", Target: "banana"}})
	assert.Error(t, err)
	_, err = NewGraph([]Edge{{Source: "rule1", Target: "rule2", Kind: EdgeKind(7)}})
	assert.Error(t, err)

	g, err := NewGraph([]Edge{
		{Source: "rule1", Target: "rule2"},
		{Source: "rule1", Target: "rule2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
}

func TestNormalize_ConflictingEdgesConverge(t *testing.T) {
	g, err := NewGraph([]Edge{
		{Source: "rule1", Target: "rule3", Kind: PropagateNo},
		{Source: "rule2", Target: "rule3", Kind: PropagateYes},
	})
	require.NoError(t, err)

	out, err := New(g, FixedPoint).NormalizeLabels(labels("rule1", "no", "rule2", "yes"))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictYes, out["rule3"], "later edge wins within a pass")
}

func TestLoadGraph(t *testing.T) {
	g, err := LoadGraph(strings.NewReader(`
no:
  rule5: [rule6, rule7]
  rule1: [rule2]
yes:
  rule6: [rule7]
`))
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{Source: "rule1", Target: "rule2", Kind: PropagateNo},
		{Source: "rule5", Target: "rule6", Kind: PropagateNo},
		{Source: "rule5", Target: "rule7", Kind: PropagateNo},
		{Source: "rule6", Target: "rule7", Kind: PropagateYes},
	}, g.Edges())
}

func TestLoadGraph_YesEdgesApplyAfterAllNoEdges(t *testing.T) {
	// rule2 sorts before rule17, yet its yes-edge must run after rule17's no-edge
	g, err := LoadGraph(strings.NewReader(`
no:
  rule17: [rule20]
yes:
  rule2: [rule20]
`))
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{Source: "rule17", Target: "rule20", Kind: PropagateNo},
		{Source: "rule2", Target: "rule20", Kind: PropagateYes},
	}, g.Edges())

	in := labels("rule2", "yes", "rule17", "no")
	for _, mode := range []Mode{SinglePass, FixedPoint} {
		out, err := New(g, mode).NormalizeLabels(in)
		require.NoError(t, err)
		assert.Equal(t, model.VerdictYes, out["rule20"], "mode %s", mode)
	}
}

func TestLoadGraph_Errors(t *testing.T) {
	_, err := LoadGraph(strings.NewReader(""))
	assert.Error(t, err)

	_, err = LoadGraph(strings.NewReader("no:\n  ruleX: [rule2]\n"))
	assert.Error(t, err)

	_, err = LoadGraph(strings.NewReader("no:\n  rule1: [rule2]\n  rule2: [rule1]\n"))
	var cycle *CycleError
	assert.ErrorAs(t, err, &cycle)
}

func TestNormalizeTable(t *testing.T) {
	table := &model.ResultTable{
		Header: []string{"ID", "Abstract"},
		Rows: []model.ResultRow{
			{Record: model.Record{ID: 1, Abstract: "a"}, Labels: labels("rule1", "no")},
			{Record: model.Record{ID: 2, Abstract: "b"}, Labels: labels("rule1", "yes")},
			{Record: model.Record{ID: 3}},
		},
	}

	out, err := New(nil, FixedPoint).NormalizeTable(table)
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNo, out.Rows[0].Labels["rule4"])
	assert.Equal(t, model.VerdictUnset, table.Rows[0].Labels["rule4"], "input table is untouched")
	assert.True(t, out.Rows[2].Labels.Empty())
	assert.Equal(t, 1, ChangedRows(table, out))

	again, err := New(nil, FixedPoint).NormalizeTable(out)
	require.NoError(t, err)
	assert.Equal(t, 0, ChangedRows(out, again))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, FixedPoint, m)

	m, err = ParseMode("Single-Pass")
	require.NoError(t, err)
	assert.Equal(t, SinglePass, m)
	assert.Equal(t, "single-pass", m.String())

	_, err = ParseMode("twice")
	assert.Error(t, err)
}
