package compiler

import "github.com/ravi-parthasarathy/flowc/pkg/flow"

// entry is the outcome of start resolution. anchor is the node the flow
// begins at; node is the first conversational node (equal to anchor unless
// the anchor is a start/trigger marker). Either may be nil.
type entry struct {
	anchor *flow.Node
	node   *flow.Node
}

// resolveEntry picks the anchor in priority order:
//  1. the first start or trigger node;
//  2. the first non-condition node with no incoming edge;
//  3. the first non-condition node.
//
// For a marker anchor the entry node is the target of its first outgoing
// edge, unless that target is a condition (then the flow opens on a branch
// and has no single entry node).
func resolveEntry(g *flow.Graph, index map[string]*flow.Node) entry {
	anchor := firstNode(g, func(n *flow.Node) bool { return n.Kind().IsEntryMarker() })

	if anchor == nil {
		incoming := make(map[string]bool, len(g.Edges))
		for _, e := range g.Edges {
			incoming[e.Target] = true
		}
		anchor = firstNode(g, func(n *flow.Node) bool {
			return n.Kind() != flow.KindCondition && !incoming[n.ID]
		})
	}
	if anchor == nil {
		anchor = firstNode(g, func(n *flow.Node) bool { return n.Kind() != flow.KindCondition })
	}
	if anchor == nil {
		return entry{}
	}
	if !anchor.Kind().IsEntryMarker() {
		return entry{anchor: anchor, node: anchor}
	}

	out := g.OutgoingEdges(anchor.ID)
	if len(out) == 0 {
		return entry{anchor: anchor}
	}
	target, ok := index[out[0].Target]
	if !ok {
		return entry{anchor: anchor}
	}
	switch k := target.Kind(); {
	case k == flow.KindCondition, k.IsEntryMarker():
		return entry{anchor: anchor}
	}
	return entry{anchor: anchor, node: target}
}

func firstNode(g *flow.Graph, match func(*flow.Node) bool) *flow.Node {
	for i := range g.Nodes {
		if match(&g.Nodes[i]) {
			return &g.Nodes[i]
		}
	}
	return nil
}
