package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/willakat/toysm"
)

// DOTGenerator renders a toysm.GraphView as Graphviz DOT. It reads the
// graph only through that read-only interface, never through engine
// internals, matching spec.md §6's external-collaborator boundary for
// the visualization package.
type DOTGenerator struct {
	view    toysm.GraphView
	options DOTOptions
}

// DOTOptions configures the DOT generation, same shape as the
// teacher's visualization/dot.go DOTOptions.
type DOTOptions struct {
	ShowPseudostates    bool
	RankDirection       string // "TB", "LR", "BT", "RL"
	NodeShape           string
	CompositeStateStyle string
	ParallelStateStyle  string
	PseudostateStyle    string
}

// DefaultDOTOptions returns sensible defaults.
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowPseudostates:    true,
		RankDirection:       "TB",
		NodeShape:           "box",
		CompositeStateStyle: "rounded,filled",
		ParallelStateStyle:  "rounded,filled",
		PseudostateStyle:    "circle",
	}
}

// NewDOTGenerator builds a generator over view.
func NewDOTGenerator(view toysm.GraphView, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	return &DOTGenerator{view: view, options: opts}
}

// Generate produces the DOT source.
func (g *DOTGenerator) Generate() (string, error) {
	var dot strings.Builder

	dot.WriteString("digraph StateMachine {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString("  node [shape=box];\n")
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generateNodes(&dot)
	g.generateTransitions(&dot)

	dot.WriteString("}\n")
	return dot.String(), nil
}

func (g *DOTGenerator) generateNodes(dot *strings.Builder) {
	dot.WriteString("  // States\n")
	root := g.view.RootName()
	for _, name := range g.view.NodeNames() {
		kind, _ := g.view.NodeKind(name)
		if kind != "simple" && kind != "composite" && kind != "parallel" && !g.options.ShowPseudostates {
			continue
		}
		g.generateNode(dot, name, kind, name == root)
	}
}

func (g *DOTGenerator) generateNode(dot *strings.Builder, name, kind string, isRoot bool) {
	style := g.options.NodeShape
	fillColor := "lightblue"
	label := name

	switch kind {
	case "final", "terminate":
		style = "doublecircle"
		fillColor = "lightcoral"
	case "composite":
		parts := strings.Split(g.options.CompositeStateStyle, ",")
		style = parts[0]
		fillColor = "lightcyan"
	case "parallel":
		style = g.options.ParallelStateStyle
		fillColor = "lavender"
	case "initial", "junction", "history", "deep-history", "entry-point", "exit-point":
		style = g.options.PseudostateStyle
		fillColor = "lightyellow"
		label = fmt.Sprintf("%s\\n[%s]", name, kind)
	}
	if isRoot {
		label += "\\n(root)"
	}

	dot.WriteString(fmt.Sprintf("  \"%s\" [shape=%s style=\"filled\" fillcolor=%s label=\"%s\"];\n",
		name, style, fillColor, label))
}

func (g *DOTGenerator) generateTransitions(dot *strings.Builder) {
	dot.WriteString("  // Transitions\n")
	for _, t := range g.view.Transitions() {
		dot.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s (%s)\"];\n",
			t.Source, t.Target, t.Label, t.Kind))
	}
}

// GenerateToFile writes the DOT representation to a file.
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(content), 0644)
}

// SVGGenerator shells out to Graphviz's `dot` to render an SVG.
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator builds an SVG generator over view.
func NewSVGGenerator(view toysm.GraphView, options ...DOTOptions) *SVGGenerator {
	return &SVGGenerator{dotGenerator: NewDOTGenerator(view, options...)}
}

// Generate renders SVG by piping DOT source into `dot -Tsvg`.
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}
	return out.String(), nil
}

// GenerateSVG is a convenience method on DOTGenerator.
func (g *DOTGenerator) GenerateSVG() (string, error) {
	svgGen := &SVGGenerator{dotGenerator: g}
	return svgGen.Generate()
}
