package graph

import (
	"github.com/shaiso/agentflow/internal/domain"
)

// Виды рёбер.
const (
	EdgeDependency = "depends_on"
	EdgeSuccess    = "on_success"
	EdgeFailure    = "on_failure"
)

// Цвета рёбер: ветки успеха и ошибки различаются.
var edgeColors = map[string]string{
	EdgeDependency: "gray40",
	EdgeSuccess:    "forestgreen",
	EdgeFailure:    "firebrick",
}

// Node — task в проекции графа.
type Node struct {
	ID       string            `json:"id"`
	Label    string            `json:"label"`
	Kind     domain.TaskKind   `json:"kind"`
	Status   domain.TaskStatus `json:"status,omitempty"`
	Parallel bool              `json:"parallel,omitempty"`
}

// Edge — ребро графа.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Kind  string `json:"kind"`
	Color string `json:"color"`

	// Taken — выбранная ветка (только для уже завершённых tasks).
	Taken bool `json:"taken,omitempty"`
}

// Graph — read-only проекция workflow для отрисовки.
type Graph struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Export строит проекцию workflow. Состояние workflow не меняется.
func Export(wf *domain.Workflow) Graph {
	g := Graph{ID: wf.ID, Name: wf.Name}

	wf.View(func(v *domain.View) {
		for _, t := range v.Tasks() {
			g.Nodes = append(g.Nodes, Node{
				ID:       t.ID,
				Label:    t.Name,
				Kind:     t.Kind,
				Status:   t.Status,
				Parallel: t.Parallel,
			})

			for _, dep := range t.DependsOn {
				g.Edges = append(g.Edges, newEdge(dep, t.ID, EdgeDependency, false))
			}
			if t.OnSuccess != "" {
				g.Edges = append(g.Edges, newEdge(t.ID, t.OnSuccess, EdgeSuccess, t.Route == domain.RouteSuccess))
			}
			if t.OnFailure != "" {
				g.Edges = append(g.Edges, newEdge(t.ID, t.OnFailure, EdgeFailure, t.Route == domain.RouteFailure))
			}
		}
	})
	return g
}

// ExportDefinition строит проекцию определения без построения workflow.
func ExportDefinition(def *domain.WorkflowDef) Graph {
	g := Graph{ID: def.ID, Name: def.Name}
	for _, t := range def.Tasks {
		label := t.Name
		if label == "" {
			label = t.ID
		}
		kind, _ := domain.ParseTaskKind(t.Kind)
		g.Nodes = append(g.Nodes, Node{ID: t.ID, Label: label, Kind: kind, Parallel: t.Parallel})

		for _, dep := range t.DependsOn {
			g.Edges = append(g.Edges, newEdge(dep, t.ID, EdgeDependency, false))
		}
		if t.OnSuccess != "" {
			g.Edges = append(g.Edges, newEdge(t.ID, t.OnSuccess, EdgeSuccess, false))
		}
		if t.OnFailure != "" {
			g.Edges = append(g.Edges, newEdge(t.ID, t.OnFailure, EdgeFailure, false))
		}
	}
	return g
}

func newEdge(from, to, kind string, taken bool) Edge {
	return Edge{From: from, To: to, Kind: kind, Color: edgeColors[kind], Taken: taken}
}
