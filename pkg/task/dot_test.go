package task

import (
	"strings"
	"testing"
)

func TestToDOT(t *testing.T) {
	g := New()
	_ = g.AddTask("src-0", KindSource, nil, value(1))
	_ = g.AddTask("map-0", KindMap, []string{"src-0"}, value(2))
	_ = g.AddTask("assemble-0", KindAssemble, []string{"map-0"}, value(3))

	dot := ToDOT(g, DOTOptions{})

	for _, want := range []string{
		"digraph G {",
		`"src-0"`,
		`"src-0" -> "map-0";`,
		`"map-0" -> "assemble-0";`,
		"fillcolor=lightgrey", // source styling
		"peripheries=2",       // assemble styling
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

func TestToDOTDetailed(t *testing.T) {
	g := New()
	_ = g.AddTask("src-0", KindSource, nil, value(1))
	_ = g.AddTask("map-0", KindMap, []string{"src-0"}, value(2))

	dot := ToDOT(g, DOTOptions{Detailed: true})
	if !strings.Contains(dot, "deps: 1") {
		t.Errorf("detailed DOT output missing dependency count:\n%s", dot)
	}
	if !strings.Contains(dot, "kind:") {
		t.Errorf("detailed DOT output missing node kind:\n%s", dot)
	}
}
