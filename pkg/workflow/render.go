package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// Order returns node ids in BFS order from the start node following edge
// order; unreachable nodes are appended in sorted order at the end.
func Order(g *Graph) []string {
	visited := map[string]bool{}
	var order []string

	if _, ok := g.Nodes[StartNodeID]; ok {
		queue := []string{StartNodeID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			order = append(order, cur)
			for _, e := range g.OutgoingEdges(cur) {
				if _, ok := g.Nodes[e.Target]; ok && !visited[e.Target] {
					queue = append(queue, e.Target)
				}
			}
		}
	}

	var rest []string
	for id := range g.Nodes {
		if !visited[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// Describe returns a one-line summary of a node.
func Describe(n Node) string {
	switch v := n.(type) {
	case *ScriptedSpeech:
		if v.CaptureVariable != "" {
			return fmt.Sprintf("%s %q → %s", v.wireType(), v.Label, v.CaptureVariable)
		}
		return fmt.Sprintf("%s %q", v.wireType(), v.Label)
	case *GenericInstruction:
		return fmt.Sprintf("%s %q (generic)", v.wireType(), v.Label)
	case *Transfer:
		return fmt.Sprintf("%s %s (%s)", v.wireType(), v.PhoneNumber, v.Style)
	case *ToolInvocation:
		return fmt.Sprintf("%s %s", v.wireType(), v.ToolID)
	default:
		return n.wireType()
	}
}

// GuardText returns a short label for a guard; empty for unconditional edges.
func GuardText(g Guard) string {
	switch v := g.(type) {
	case LLMCondition:
		return v.Condition
	case ResultCondition:
		if v.Successful {
			return "result: success"
		}
		return "result: failure"
	default:
		return ""
	}
}

var dotShapes = map[string]string{
	"start":          "circle",
	"end":            "doublecircle",
	"override_agent": "box",
	"phone_number":   "hexagon",
	"tool":           "component",
}

// RenderDOT renders the workflow as a Graphviz digraph.
func RenderDOT(g *Graph, name string) (string, error) {
	if name == "" {
		name = "workflow"
	}
	graphName := strconv.Quote(name)

	out := gographviz.NewGraph()
	if err := out.SetName(graphName); err != nil {
		return "", err
	}
	if err := out.SetDir(true); err != nil {
		return "", err
	}

	order := Order(g)
	for _, id := range order {
		n := g.Nodes[id]
		attrs := map[string]string{
			"label": strconv.Quote(id + "\n" + Describe(n)),
			"shape": dotShapes[n.wireType()],
		}
		if err := out.AddNode(graphName, strconv.Quote(id), attrs); err != nil {
			return "", fmt.Errorf("render node %q: %w", id, err)
		}
	}

	for _, id := range order {
		for _, e := range g.OutgoingEdges(id) {
			attrs := map[string]string{}
			if text := GuardText(e.Guard); text != "" {
				attrs["label"] = strconv.Quote(text)
				attrs["style"] = "dashed"
			}
			if err := out.AddEdge(strconv.Quote(e.Source), strconv.Quote(e.Target), true, attrs); err != nil {
				return "", fmt.Errorf("render edge %q: %w", e.ID, err)
			}
		}
	}
	return out.String(), nil
}

// RenderText produces a human-readable summary.
func RenderText(g *Graph) string {
	var sb strings.Builder
	order := Order(g)
	fmt.Fprintf(&sb, "Workflow  (%d nodes, %d edges)\n", len(g.Nodes), len(g.Edges))

	maxIDLen := 4
	for id := range g.Nodes {
		if len(id) > maxIDLen {
			maxIDLen = len(id)
		}
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for _, id := range order {
		fmt.Fprintf(&sb, "  %-*s  %s\n", maxIDLen, id, Describe(g.Nodes[id]))
	}

	fmt.Fprintf(&sb, "\nEdges:\n")
	for _, id := range order {
		for _, e := range g.OutgoingEdges(id) {
			if text := GuardText(e.Guard); text != "" {
				fmt.Fprintf(&sb, "  %-*s  →  %s  [%s]\n", maxIDLen, e.Source, e.Target, text)
			} else {
				fmt.Fprintf(&sb, "  %-*s  →  %s\n", maxIDLen, e.Source, e.Target)
			}
		}
	}
	return sb.String()
}
