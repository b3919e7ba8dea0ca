package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shaiso/agentflow/internal/domain"
)

// ErrUnknownFormat — неизвестный формат вывода.
var ErrUnknownFormat = errors.New("unknown graph format")

// Форматы вывода.
const (
	FormatDOT  = "dot"
	FormatJSON = "json"
)

// Renderer — внешний отрисовщик графа.
type Renderer interface {
	Render(w io.Writer, g Graph) error
}

// RendererFor возвращает отрисовщик по формату.
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", FormatDOT:
		return DOTRenderer{}, nil
	case FormatJSON:
		return JSONRenderer{Indent: true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// statusColors — заливка узлов по статусу.
var statusColors = map[domain.TaskStatus]string{
	domain.TaskStatusCompleted:     "palegreen",
	domain.TaskStatusFailed:        "lightpink",
	domain.TaskStatusSkipped:       "lightgray",
	domain.TaskStatusRunning:       "lightyellow",
	domain.TaskStatusAwaitingInput: "lightblue",
}

// DOTRenderer выводит граф в формате Graphviz DOT.
type DOTRenderer struct{}

// Render реализует Renderer.
func (DOTRenderer) Render(w io.Writer, g Graph) error {
	var b strings.Builder

	fmt.Fprintf(&b, "digraph %s {\n", strconv.Quote(g.ID))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white];\n")

	for _, n := range g.Nodes {
		attrs := []string{"label=" + strconv.Quote(fmt.Sprintf("%s\n(%s)", n.Label, n.Kind))}
		if color, ok := statusColors[n.Status]; ok {
			attrs = append(attrs, "fillcolor="+color)
		}
		if n.Parallel {
			attrs = append(attrs, "peripheries=2")
		}
		fmt.Fprintf(&b, "  %s [%s];\n", strconv.Quote(n.ID), strings.Join(attrs, ", "))
	}

	for _, e := range g.Edges {
		attrs := []string{"color=" + e.Color}
		switch e.Kind {
		case EdgeDependency:
			attrs = append(attrs, "style=dashed")
		default:
			attrs = append(attrs, "label="+strconv.Quote(strings.TrimPrefix(e.Kind, "on_")))
		}
		if e.Taken {
			attrs = append(attrs, "penwidth=2")
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", strconv.Quote(e.From), strconv.Quote(e.To), strings.Join(attrs, ", "))
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// JSONRenderer выводит граф в JSON.
type JSONRenderer struct {
	Indent bool
}

// Render реализует Renderer.
func (r JSONRenderer) Render(w io.Writer, g Graph) error {
	enc := json.NewEncoder(w)
	if r.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(g)
}
