package engine

import (
	"fmt"

	"github.com/shaiso/agentflow/internal/domain"
)

// EdgeKind — вид ребра графа.
type EdgeKind string

const (
	// EdgeDependency — ребро depends_on.
	EdgeDependency EdgeKind = "depends_on"

	// EdgeSuccess — ребро on_success.
	EdgeSuccess EdgeKind = "on_success"

	// EdgeFailure — ребро on_failure.
	EdgeFailure EdgeKind = "on_failure"
)

// Edge — ребро между tasks.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Node — узел в DAG.
type Node struct {
	// Task — определение task.
	Task *domain.TaskDef

	// ID — идентификатор узла (совпадает с Task.ID).
	ID string

	// Index — позиция в порядке объявления.
	Index int

	// InDegree — количество входящих рёбер (зависимости и маршруты).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// RouteSources — узлы, чьи on_success/on_failure указывают сюда.
	RouteSources []*Node
}

// IsGated — узел запускается только по маршруту другого task.
func (n *Node) IsGated() bool {
	return len(n.RouteSources) > 0
}

// DAG — направленный ациклический граф tasks workflow.
//
// Рёбра строятся и по depends_on, и по on_success/on_failure:
// цикл в любой комбинации этих рёбер запрещён.
type DAG struct {
	// Nodes — все узлы графа (taskID → Node).
	Nodes map[string]*Node

	// Declared — узлы в порядке объявления.
	Declared []*Node

	// RootNodes — узлы без входящих рёбер, в порядке объявления.
	RootNodes []*Node

	// Order — топологический порядок (при равенстве — порядок объявления).
	Order []*Node

	// Edges — все рёбра в порядке объявления.
	Edges []Edge
}

// BuildDAG строит DAG из определения workflow.
func BuildDAG(def *domain.WorkflowDef) (*DAG, error) {
	dag := &DAG{
		Nodes: make(map[string]*Node, len(def.Tasks)),
	}

	// Первый проход: создаём все узлы
	for i := range def.Tasks {
		task := &def.Tasks[i]
		if _, exists := dag.Nodes[task.ID]; exists {
			return nil, NewValidationError(task.ID, "id",
				fmt.Sprintf("duplicate task ID: %s", task.ID), ErrDuplicateTaskID)
		}
		node := &Node{Task: task, ID: task.ID, Index: i}
		dag.Nodes[task.ID] = node
		dag.Declared = append(dag.Declared, node)
	}

	// Второй проход: связываем узлы
	for _, node := range dag.Declared {
		if err := dag.link(node); err != nil {
			return nil, err
		}
	}

	dag.findRootNodes()

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// link добавляет рёбра узла: зависимости и маршруты.
func (d *DAG) link(node *Node) error {
	for _, depID := range node.Task.DependsOn {
		if depID == node.ID {
			return NewValidationError(node.ID, "depends_on", "task depends on itself", ErrSelfDependency)
		}
		dep, ok := d.Nodes[depID]
		if !ok {
			return NewValidationError(node.ID, "depends_on",
				fmt.Sprintf("depends on unknown task: %s", depID), ErrMissingDependency)
		}
		if d.addEdge(dep, node) {
			d.Edges = append(d.Edges, Edge{From: depID, To: node.ID, Kind: EdgeDependency})
		}
	}

	routes := []struct {
		target string
		kind   EdgeKind
	}{
		{node.Task.OnSuccess, EdgeSuccess},
		{node.Task.OnFailure, EdgeFailure},
	}
	for _, r := range routes {
		if r.target == "" {
			continue
		}
		target, ok := d.Nodes[r.target]
		if !ok {
			return NewValidationError(node.ID, string(r.kind),
				fmt.Sprintf("routes to unknown task: %s", r.target), ErrUnknownRoute)
		}
		if target == node {
			return NewValidationError(node.ID, string(r.kind), "task routes to itself", ErrCyclicDependency)
		}
		d.addEdge(node, target)
		if !containsNode(target.RouteSources, node) {
			target.RouteSources = append(target.RouteSources, node)
		}
		d.Edges = append(d.Edges, Edge{From: node.ID, To: r.target, Kind: r.kind})
	}

	return nil
}

// addEdge добавляет ребро между узлами.
// Дополнительно проверяет на дубликаты, чтобы избежать двойного учета InDegree.
func (d *DAG) addEdge(from, to *Node) bool {
	if containsNode(to.DependsOn, from) {
		return false
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
	return true
}

func containsNode(nodes []*Node, n *Node) bool {
	for _, x := range nodes {
		if x == n {
			return true
		}
	}
	return false
}

// findRootNodes находит узлы без входящих рёбер.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for _, node := range d.Declared {
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Среди готовых узлов первым берётся объявленный раньше.
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	ready := make([]bool, len(d.Declared))
	for _, n := range d.RootNodes {
		ready[n.Index] = true
	}

	order := make([]*Node, 0, len(d.Nodes))
	for len(order) < len(d.Declared) {
		next := -1
		for i, ok := range ready {
			if ok {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, d.cycleError(inDegree)
		}

		node := d.Declared[next]
		ready[next] = false
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				ready[dependent.Index] = true
			}
		}
	}

	return order, nil
}

// cycleError называет первый по порядку объявления узел, оставшийся в цикле.
func (d *DAG) cycleError(inDegree map[string]int) error {
	for _, n := range d.Declared {
		if inDegree[n.ID] > 0 {
			return NewValidationError(n.ID, "depends_on",
				fmt.Sprintf("task %s is part of a cycle", n.ID), ErrCyclicDependency)
		}
	}
	return ErrCyclicDependency
}

// CycleWith проверяет, что дополнительные рёбра порядка не образуют цикла
// вместе с рёбрами графа. extra: from → tasks, которые запускаются после from.
// Возвращает первый по порядку объявления узел в цикле или nil.
func (d *DAG) CycleWith(extra map[string][]string) *Node {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}
	for _, targets := range extra {
		for _, id := range targets {
			inDegree[id]++
		}
	}

	queue := make([]*Node, 0, len(d.Nodes))
	for _, n := range d.Declared {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		next := append([]*Node(nil), n.Dependents...)
		for _, id := range extra[n.ID] {
			if m, ok := d.Nodes[id]; ok {
				next = append(next, m)
			}
		}
		for _, m := range next {
			inDegree[m.ID]--
			if inDegree[m.ID] == 0 {
				queue = append(queue, m)
			}
		}
	}

	for _, n := range d.Declared {
		if inDegree[n.ID] > 0 {
			return n
		}
	}
	return nil
}

// Ancestors возвращает все узлы, из которых достижим данный.
func (d *DAG) Ancestors(id string) map[string]bool {
	seen := make(map[string]bool)
	node, ok := d.Nodes[id]
	if !ok {
		return seen
	}
	stack := append([]*Node(nil), node.DependsOn...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		stack = append(stack, n.DependsOn...)
	}
	return seen
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}
