package graph

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Description is the serializable shape of a graph, independent of the
// transforms held by its edges.
type Description struct {
	Transactional bool              `yaml:"transactional"`
	Result        *int              `yaml:"result,omitempty"`
	Nodes         []NodeDescription `yaml:"nodes"`
	Edges         []EdgeDescription `yaml:"edges,omitempty"`
}

// NodeDescription describes one node.
type NodeDescription struct {
	Ref  int    `yaml:"ref"`
	Kind string `yaml:"kind"`
	Op   string `yaml:"op,omitempty"`
}

// EdgeDescription describes one edge.
type EdgeDescription struct {
	From        int      `yaml:"from"`
	To          int      `yaml:"to"`
	Dependency  string   `yaml:"dependency"`
	Selection   []string `yaml:"selection,omitempty"`
	Sink        string   `yaml:"sink,omitempty"`
	Expectation string   `yaml:"expectation,omitempty"`
}

// Describe returns the shape of the graph.
func (g *QueryGraph) Describe() Description {
	d := Description{
		Transactional: g.transactional,
		Nodes:         make([]NodeDescription, len(g.nodes)),
	}
	if g.hasResult {
		r := int(g.result)
		d.Result = &r
	}
	for i, n := range g.nodes {
		nd := NodeDescription{Ref: i}
		switch n := n.(type) {
		case *QueryNode:
			nd.Kind = strings.TrimPrefix(fmt.Sprintf("%T", n.Query), "*query.")
			nd.Op = n.Query.String()
		case *If:
			nd.Kind = "If"
		default:
			nd.Kind = n.String()
		}
		d.Nodes[i] = nd
	}
	for _, e := range g.edges {
		ed := EdgeDescription{
			From:      int(e.From),
			To:        int(e.To),
			Selection: SelectionOf(e.Dependency).Names(),
		}
		switch dep := e.Dependency.(type) {
		case ProjectedDataDependency:
			ed.Dependency = "ProjectedDataDependency"
		case ProjectedDataSinkDependency:
			ed.Dependency = "ProjectedDataSinkDependency"
			ed.Sink = dep.Sink.String()
		default:
			ed.Dependency = dep.String()
		}
		if exp := ExpectationOf(e.Dependency); exp != nil {
			ed.Expectation = exp.String()
		}
		if len(ed.Selection) == 0 {
			ed.Selection = nil
		}
		d.Edges = append(d.Edges, ed)
	}
	return d
}

// MarshalYAML implements yaml.Marshaler.
func (g *QueryGraph) MarshalYAML() (any, error) {
	return g.Describe(), nil
}

// String returns the YAML shape of the graph.
func (g *QueryGraph) String() string {
	b, err := yaml.Marshal(g.Describe())
	if err != nil {
		return fmt.Sprintf("graph: %v", err)
	}
	return string(b)
}
