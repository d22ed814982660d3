// Package compiler turns an author-facing flow graph into the deterministic
// workflow the voice engine executes.
//
// Compilation is a pure function of its input: it performs no I/O and keeps
// no state between calls, so flows may be compiled concurrently.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/forms"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

// ErrEmptyGraph is returned when the flow has no nodes at all.
var ErrEmptyGraph = errors.New("compiler: flow graph has no nodes")

// Result is everything a compile produces.
type Result struct {
	Workflow *workflow.Graph `json:"workflow"`
	// FirstMessage is the literal text of an entry message node, delivered
	// through the engine's dedicated first-utterance field.
	FirstMessage string              `json:"firstMessage,omitempty"`
	EntryNodeID  string              `json:"entryNodeId,omitempty"`
	Features     Features            `json:"features"`
	Validation   workflow.Validation `json:"validation"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// Option configures a compile.
type Option func(*options)

type options struct {
	forms forms.Lookup
}

// WithForms supplies the form definitions form nodes are enriched from.
func WithForms(l forms.Lookup) Option {
	return func(o *options) { o.forms = l }
}

// compilation is the per-call state shared by the passes.
type compilation struct {
	graph    *flow.Graph
	index    map[string]*flow.Node
	forms    forms.Lookup
	entry    entry
	softID   string // entry message node whose text was hoisted
	warnings []string
	warned   map[string]bool
}

// Compile translates g into a workflow. The only error is ErrEmptyGraph;
// structural problems are reported in Result.Validation instead.
func Compile(g *flow.Graph, opts ...Option) (*Result, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}
	o := options{forms: forms.Catalog{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.forms == nil {
		o.forms = forms.Catalog{}
	}

	g, reserved := withoutReservedIDs(g)
	c := &compilation{
		graph:  g,
		index:  g.Index(),
		forms:  o.forms,
		warned: make(map[string]bool),
	}
	if reserved {
		c.warnf("node id %q collides with the synthetic start node: node and its edges skipped", workflow.StartNodeID)
	}
	c.entry = resolveEntry(g, c.index)

	res := &Result{}
	if n := c.entry.node; n != nil {
		res.EntryNodeID = n.ID
		if n.Kind() == flow.KindMessage {
			cfg := decode[flow.MessageConfig](c, n)
			if strings.TrimSpace(cfg.Message) != "" {
				res.FirstMessage = cfg.Message
				c.softID = n.ID
			}
		}
	}

	asm := newAssembler()
	seen := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if seen[n.ID] {
			c.warnf("duplicate node id %q: later definition ignored", n.ID)
			continue
		}
		seen[n.ID] = true
		compiled := c.compileNode(n)
		if compiled == nil {
			continue
		}
		asm.addNode(n.ID, compiled)
	}

	// Entry markers are elided and their outgoing edges are re-sourced onto
	// the synthetic start, so only a non-marker entry needs explicit wiring.
	if c.entry.node != nil && c.entry.anchor == c.entry.node {
		asm.addEdge(workflow.StartNodeID, c.entry.node.ID, workflow.Unconditional{})
	}

	for _, l := range c.resolveLinks() {
		asm.addEdge(c.aliasSource(l.source), l.target, l.guard)
	}

	res.Workflow = asm.wf
	res.Features = c.analyze(asm.wf)
	res.Validation = workflow.Validate(asm.wf)
	res.Warnings = c.warnings
	return res, nil
}

// withoutReservedIDs returns g minus any node using the synthetic start's id
// and every edge touching that id. Such a node is never compiled, so it can
// neither become the entry nor lend its edges to the synthetic start. The
// input graph is not modified.
func withoutReservedIDs(g *flow.Graph) (*flow.Graph, bool) {
	if g.Node(workflow.StartNodeID) == nil {
		return g, false
	}
	out := &flow.Graph{
		Nodes: make([]flow.Node, 0, len(g.Nodes)),
		Edges: make([]flow.Edge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		if n.ID != workflow.StartNodeID {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if e.Source != workflow.StartNodeID && e.Target != workflow.StartNodeID {
			out.Edges = append(out.Edges, e)
		}
	}
	return out, true
}

// aliasSource maps start and trigger nodes onto the synthetic start node.
func (c *compilation) aliasSource(id string) string {
	if n, ok := c.index[id]; ok && n.Kind().IsEntryMarker() {
		return workflow.StartNodeID
	}
	return id
}

func (c *compilation) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.warned[msg] {
		return
	}
	c.warned[msg] = true
	c.warnings = append(c.warnings, msg)
}

// decode reads a node's typed config, recording a warning on failure.
func decode[T any](c *compilation, n *flow.Node) T {
	cfg, err := flow.DecodeConfig[T](n)
	if err != nil {
		c.warnf("%v", err)
	}
	return cfg
}
