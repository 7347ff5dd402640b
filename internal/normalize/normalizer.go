package normalize

import (
	"fmt"
	"strings"

	"github.com/ppiankov/rulelabel/internal/model"
)

// Mode selects how far propagation runs
type Mode int

const (
	// FixedPoint repeats passes until no verdict changes
	FixedPoint Mode = iota
	// SinglePass applies every edge once in declaration order. Multi-hop
	// implications are only covered if the graph lists the transitive edge.
	SinglePass
)

func (m Mode) String() string {
	if m == SinglePass {
		return "single-pass"
	}
	return "fixed-point"
}

// ParseMode parses "fixed-point" or "single-pass"; empty means fixed-point
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed-point", "fixedpoint", "fixed_point":
		return FixedPoint, nil
	case "single-pass", "singlepass", "single_pass":
		return SinglePass, nil
	default:
		return FixedPoint, fmt.Errorf("unknown normalize mode %q (want fixed-point or single-pass)", s)
	}
}

// Normalizer applies a graph to labels. It holds no mutable state.
type Normalizer struct {
	graph *Graph
	mode  Mode
}

// New creates a normalizer; a nil graph means DefaultGraph
func New(graph *Graph, mode Mode) *Normalizer {
	if graph == nil {
		graph = DefaultGraph()
	}
	return &Normalizer{graph: graph, mode: mode}
}

// Graph returns the normalizer's graph
func (n *Normalizer) Graph() *Graph {
	return n.graph
}

// Mode returns the propagation mode
func (n *Normalizer) Mode() Mode {
	return n.mode
}

// NormalizeLabels returns a propagated copy of labels; the input is not modified.
// Only explicit verdicts at a source fire its edges.
func (n *Normalizer) NormalizeLabels(labels model.RuleLabel) (model.RuleLabel, error) {
	out := labels.Clone()

	if n.mode == SinglePass {
		n.pass(out)
		return out, nil
	}

	// An acyclic graph settles within its longest path; one extra pass confirms it
	maxPasses := n.graph.Len() + 1
	for i := 0; i < maxPasses; i++ {
		if !n.pass(out) {
			return out, nil
		}
	}
	return nil, &CycleError{}
}

// pass applies every edge once and reports whether the labels differ afterwards.
// Conflicting edges on one target resolve to the later edge within a pass.
func (n *Normalizer) pass(labels model.RuleLabel) bool {
	before := labels.Clone()
	for _, e := range n.graph.edges {
		want := e.Kind.verdict()
		if labels[e.Source] == want {
			labels[e.Target] = want
		}
	}
	return !before.Equal(labels)
}

// NormalizeTable returns a copy of the table with every row normalized
func (n *Normalizer) NormalizeTable(table *model.ResultTable) (*model.ResultTable, error) {
	out := table.Clone()
	for i := range out.Rows {
		labels, err := n.NormalizeLabels(out.Rows[i].Labels)
		if err != nil {
			return nil, fmt.Errorf("row %d (id %d): %w", i, out.Rows[i].Record.ID, err)
		}
		out.Rows[i].Labels = labels
	}
	return out, nil
}

// ChangedRows counts rows whose labels differ between two versions of a table
func ChangedRows(before, after *model.ResultTable) int {
	changed := 0
	for i := range before.Rows {
		if i >= len(after.Rows) || !before.Rows[i].Labels.Equal(after.Rows[i].Labels) {
			changed++
		}
	}
	return changed
}
