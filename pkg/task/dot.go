package task

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
)

// DOTOptions configures task-graph rendering.
type DOTOptions struct {
	// Detailed includes node kind and dependency counts in labels.
	// When false, only the node id is shown.
	Detailed bool
}

// ToDOT converts a task graph to Graphviz DOT format. The resulting DOT
// string can be rendered with [RenderSVG] or any external Graphviz tool.
//
// Source nodes are rendered with grey fill; assemble nodes with a double
// border. Edges point from dependency to dependent, i.e. in the direction
// data flows when the graph is materialized.
func ToDOT(g *Graph, opts DOTOptions) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=18, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		label := fmtLabel(n, opts.Detailed)
		attrs := fmtAttrs(n, label)
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, n := range g.Nodes() {
		for _, dep := range n.Deps {
			fmt.Fprintf(&buf, "  %q -> %q;\n", dep, n.ID)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n *Node, detailed bool) string {
	if !detailed {
		return n.ID
	}
	return fmt.Sprintf("%s\nkind: %s\ndeps: %d", n.ID, n.Kind, len(n.Deps))
}

func fmtAttrs(n *Node, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch n.Kind {
	case KindSource:
		attrs = append(attrs, "fillcolor=lightgrey")
	case KindAssemble:
		attrs = append(attrs, "peripheries=2")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
