// Package graph turns workspace nodes and connections into step-layered execution plans.
package graph

import (
	"cmp"
	"slices"

	"github.com/dukex/actflow/pkg/models"
)

// TaskPlan is the execution plan of one trigger-bearing connected component.
type TaskPlan struct {
	// TriggerNodeIDs are the trigger roots of the component, sorted.
	TriggerNodeIDs []string

	// NodeIDs are every node of the component, sorted.
	NodeIDs []string

	// Steps is the topological layering. Nodes within a step are independent
	// and sorted by id.
	Steps [][]string

	// Connections are the edges internal to the component.
	Connections []*models.Connection
}

// StepIndex returns the step a node is planned in, or -1.
func (p *TaskPlan) StepIndex(nodeID string) int {
	for i, step := range p.Steps {
		if slices.Contains(step, nodeID) {
			return i
		}
	}

	return -1
}

// Contains reports whether the node belongs to the plan.
func (p *TaskPlan) Contains(nodeID string) bool {
	_, found := slices.BinarySearch(p.NodeIDs, nodeID)

	return found
}

type dependencyGraph struct {
	nodes      map[string]*models.Node
	deps       map[string]map[string]struct{} // node -> nodes it depends on
	dependents map[string]map[string]struct{} // node -> nodes depending on it
}

// Resolve builds one TaskPlan per weakly connected component containing at
// least one trigger node. Components without a trigger are left out. Plans
// are ordered by their first trigger node id.
func Resolve(nodes []*models.Node, connections []*models.Connection) ([]*TaskPlan, error) {
	g, err := build(nodes, connections)
	if err != nil {
		return nil, err
	}

	var plans []*TaskPlan

	for _, component := range g.components() {
		triggers := make([]string, 0, 1)

		for _, id := range component {
			if g.nodes[id].IsTrigger() {
				triggers = append(triggers, id)
			}
		}

		if len(triggers) == 0 {
			continue
		}

		steps, err := g.layer(component)
		if err != nil {
			return nil, err
		}

		plans = append(plans, &TaskPlan{
			TriggerNodeIDs: triggers,
			NodeIDs:        component,
			Steps:          steps,
			Connections:    componentConnections(component, connections),
		})
	}

	slices.SortFunc(plans, func(a, b *TaskPlan) int {
		return cmp.Compare(a.TriggerNodeIDs[0], b.TriggerNodeIDs[0])
	})

	return plans, nil
}

func build(nodes []*models.Node, connections []*models.Connection) (*dependencyGraph, error) {
	g := &dependencyGraph{
		nodes:      make(map[string]*models.Node, len(nodes)),
		deps:       make(map[string]map[string]struct{}, len(nodes)),
		dependents: make(map[string]map[string]struct{}, len(nodes)),
	}

	for _, node := range nodes {
		if _, exists := g.nodes[node.ID]; exists {
			return nil, newGraphError(ErrDuplicateNode, node.ID)
		}

		g.nodes[node.ID] = node
		g.deps[node.ID] = make(map[string]struct{})
		g.dependents[node.ID] = make(map[string]struct{})
	}

	for _, conn := range connections {
		sourceID, _, ok := models.ParsePortID(conn.SourcePort)
		if !ok {
			return nil, newGraphError(ErrInvalidPort, conn.SourcePort)
		}

		targetID, _, ok := models.ParsePortID(conn.TargetPort)
		if !ok {
			return nil, newGraphError(ErrInvalidPort, conn.TargetPort)
		}

		for _, id := range []string{sourceID, targetID} {
			if _, exists := g.nodes[id]; !exists {
				return nil, newGraphError(ErrDanglingConnection, id)
			}
		}

		g.deps[targetID][sourceID] = struct{}{}
		g.dependents[sourceID][targetID] = struct{}{}
	}

	return g, nil
}

// components returns the weakly connected components, each sorted by node id,
// in order of their smallest node id.
func (g *dependencyGraph) components() [][]string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	seen := make(map[string]bool, len(ids))

	var components [][]string

	for _, start := range ids {
		if seen[start] {
			continue
		}

		var component []string

		stack := []string{start}
		seen[start] = true

		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, id)

			for _, neighbors := range []map[string]struct{}{g.deps[id], g.dependents[id]} {
				for next := range neighbors {
					if !seen[next] {
						seen[next] = true
						stack = append(stack, next)
					}
				}
			}
		}

		slices.Sort(component)
		components = append(components, component)
	}

	return components
}

// layer runs Kahn's algorithm one frontier at a time over a component.
// On a cycle it reports every node that could not be placed, which includes
// nodes downstream of the cycle.
func (g *dependencyGraph) layer(component []string) ([][]string, error) {
	remaining := make(map[string]int, len(component))

	var frontier []string

	for _, id := range component {
		remaining[id] = len(g.deps[id])
		if remaining[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	var steps [][]string

	placed := 0

	for len(frontier) > 0 {
		slices.Sort(frontier)
		steps = append(steps, frontier)
		placed += len(frontier)

		var next []string

		for _, id := range frontier {
			for dependent := range g.dependents[id] {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		frontier = next
	}

	if placed < len(component) {
		var cyclic []string

		for _, id := range component {
			if remaining[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}

		return nil, newGraphError(ErrCycleDetected, cyclic...)
	}

	return steps, nil
}

func componentConnections(component []string, connections []*models.Connection) []*models.Connection {
	var result []*models.Connection

	for _, conn := range connections {
		if _, found := slices.BinarySearch(component, conn.SourceNodeID()); found {
			result = append(result, conn)
		}
	}

	slices.SortStableFunc(result, func(a, b *models.Connection) int {
		return cmp.Or(
			cmp.Compare(a.TargetPort, b.TargetPort),
			cmp.Compare(a.SourcePort, b.SourcePort),
			cmp.Compare(a.ID, b.ID),
		)
	})

	return result
}
