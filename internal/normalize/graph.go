// Package normalize enforces the implication graph between rule verdicts.
package normalize

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/rulelabel/internal/model"
)

// EdgeKind selects which verdict an edge propagates
type EdgeKind int

const (
	// PropagateNo forces the target to no whenever the source is no
	PropagateNo EdgeKind = iota
	// PropagateYes forces the target to yes whenever the source is yes
	PropagateYes
)

func (k EdgeKind) String() string {
	switch k {
	case PropagateNo:
		return "no"
	case PropagateYes:
		return "yes"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

func (k EdgeKind) verdict() model.Verdict {
	if k == PropagateYes {
		return model.VerdictYes
	}
	return model.VerdictNo
}

// Edge is one implication between two rules
type Edge struct {
	Source string
	Target string
	Kind   EdgeKind
}

func (e Edge) String() string {
	return fmt.Sprintf("%s=%s -> %s=%s", e.Source, e.Kind, e.Target, e.Kind)
}

// CycleError means the graph cannot be propagated to a stable state
type CycleError struct {
	Path []string // Rules on the cycle, first repeated at the end; empty if found by the pass bound
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency graph did not converge"
	}
	return "dependency graph has a cycle: " + strings.Join(e.Path, " -> ")
}

// Graph is an immutable, acyclic set of implication edges in application order
type Graph struct {
	edges []Edge
}

// NewGraph validates the edges and rejects cycles. Duplicate edges are dropped;
// the order of first appearance is the application order.
func NewGraph(edges []Edge) (*Graph, error) {
	seen := make(map[Edge]bool, len(edges))
	g := &Graph{edges: make([]Edge, 0, len(edges))}

	for _, e := range edges {
		if _, ok := model.RuleIndex(e.Source); !ok {
			return nil, fmt.Errorf("invalid rule name %q", e.Source)
		}
		if _, ok := model.RuleIndex(e.Target); !ok {
			return nil, fmt.Errorf("invalid rule name %q", e.Target)
		}
		if e.Kind != PropagateNo && e.Kind != PropagateYes {
			return nil, fmt.Errorf("invalid edge kind %d for %s -> %s", int(e.Kind), e.Source, e.Target)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		g.edges = append(g.edges, e)
	}

	if path := g.findCycle(); path != nil {
		return nil, &CycleError{Path: path}
	}
	return g, nil
}

// MustGraph is NewGraph that panics on error, for static edge sets
func MustGraph(edges []Edge) *Graph {
	g, err := NewGraph(edges)
	if err != nil {
		panic(err)
	}
	return g
}

// Edges returns a copy of the edges in application order
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Len returns the number of edges
func (g *Graph) Len() int {
	return len(g.edges)
}

// findCycle returns one cycle as a rule path, or nil. Edge kinds are ignored.
func (g *Graph) findCycle() []string {
	adj := make(map[string][]string)
	var nodes []string
	for _, e := range g.edges {
		if _, ok := adj[e.Source]; !ok {
			nodes = append(nodes, e.Source)
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int)
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		state[n] = onStack
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch state[next] {
			case onStack:
				start := 0
				for i, s := range stack {
					if s == next {
						start = i
						break
					}
				}
				return append(append([]string(nil), stack[start:]...), next)
			case unvisited:
				if path := visit(next); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
		return nil
	}

	for _, n := range nodes {
		if state[n] == unvisited {
			if path := visit(n); path != nil {
				return path
			}
		}
	}
	return nil
}

var defaultNoEdges = map[int][]int{
	1:  {2, 3, 4},
	5:  {6, 7, 8, 9, 10},
	11: {12},
	13: {15},
	17: {18, 19, 20, 21, 22, 23, 24, 27},
	25: {26, 28},
}

var defaultYesEdges = map[int][]int{
	6: {7},
}

// DefaultGraph returns the rule set's implication graph
func DefaultGraph() *Graph {
	return MustGraph(buildEdges(defaultNoEdges, defaultYesEdges))
}

// buildEdges emits every no-edge before any yes-edge, each group ordered by
// source rule, so a yes verdict forced late is never overwritten by a no-edge
func buildEdges(no, yes map[int][]int) []Edge {
	edges := appendEdges(nil, no, PropagateNo)
	return appendEdges(edges, yes, PropagateYes)
}

func appendEdges(edges []Edge, m map[int][]int, kind EdgeKind) []Edge {
	sources := make([]int, 0, len(m))
	for s := range m {
		sources = append(sources, s)
	}
	sort.Ints(sources)

	for _, s := range sources {
		for _, t := range m[s] {
			edges = append(edges, Edge{Source: model.RuleName(s), Target: model.RuleName(t), Kind: kind})
		}
	}
	return edges
}

// graphFile is the YAML form: {no: {rule1: [rule2, ...]}, yes: {rule6: [rule7]}}
type graphFile struct {
	No  map[string][]string `yaml:"no"`
	Yes map[string][]string `yaml:"yes"`
}

// LoadGraph reads an edge set in YAML form
func LoadGraph(r io.Reader) (*Graph, error) {
	var f graphFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("graph file is empty")
		}
		return nil, fmt.Errorf("decode graph: %w", err)
	}

	no, err := indexEdges(f.No)
	if err != nil {
		return nil, err
	}
	yes, err := indexEdges(f.Yes)
	if err != nil {
		return nil, err
	}
	return NewGraph(buildEdges(no, yes))
}

func indexEdges(m map[string][]string) (map[int][]int, error) {
	out := make(map[int][]int, len(m))
	for source, targets := range m {
		s, ok := model.RuleIndex(source)
		if !ok {
			return nil, fmt.Errorf("invalid rule name %q", source)
		}
		for _, target := range targets {
			t, ok := model.RuleIndex(target)
			if !ok {
				return nil, fmt.Errorf("invalid rule name %q", target)
			}
			out[s] = append(out[s], t)
		}
	}
	return out, nil
}
