// Package workflow holds the compiled, engine-facing representation of a
// flow: a closed set of node variants, guarded edges, and the wire encoding
// the voice engine expects.
package workflow

import "github.com/ravi-parthasarathy/flowc/pkg/flow"

// StartNodeID is the fixed id of the synthetic entry node.
const StartNodeID = "start_node"

// Node is a compiled workflow node. The set of implementations is closed:
// Start, ScriptedSpeech, Transfer, Terminal, ToolInvocation and
// GenericInstruction.
type Node interface {
	header() *Header
	wireType() string
}

// Header carries the fields every variant shares.
type Header struct {
	Position flow.Position
	// EdgeOrder lists the ids of edges leaving this node in evaluation priority.
	EdgeOrder []string
}

func (h *Header) header() *Header { return h }

// Base returns the shared header of any compiled node.
func Base(n Node) *Header { return n.header() }

// Start is the synthetic entry point.
type Start struct {
	Header
}

// ScriptedSpeech instructs the engine to say specific text. Prompt is the full
// instruction sent to the engine; Text is the author's literal wording.
type ScriptedSpeech struct {
	Header
	Label  string
	Prompt string
	Text   string
	// CaptureVariable is set for questions: the answer is remembered under it.
	CaptureVariable string
	ToolIDs         []string
}

// TransferStyle selects how a call is handed over.
type TransferStyle string

const (
	TransferConference TransferStyle = "conference"
	TransferBlind      TransferStyle = "blind"
)

// Transfer hands the call to a phone number.
type Transfer struct {
	Header
	Label       string
	PhoneNumber string
	Style       TransferStyle
}

// Terminal ends the conversation.
type Terminal struct {
	Header
}

// ToolInvocation calls an external tool. ToolID holds the friendly tool name
// until the linker rewrites it to the engine's handle.
type ToolInvocation struct {
	Header
	ToolID string
}

// GenericInstruction is the fallback for node kinds the compiler does not
// recognise.
type GenericInstruction struct {
	Header
	Label  string
	Prompt string
}

func (*Start) wireType() string              { return "start" }
func (*ScriptedSpeech) wireType() string     { return "override_agent" }
func (*Transfer) wireType() string           { return "phone_number" }
func (*Terminal) wireType() string           { return "end" }
func (*ToolInvocation) wireType() string     { return "tool" }
func (*GenericInstruction) wireType() string { return "override_agent" }

// Guard controls whether the engine may traverse an edge.
type Guard interface {
	guard()
}

// Unconditional edges are always traversable.
type Unconditional struct{}

// LLMCondition is a natural-language condition judged by the engine.
type LLMCondition struct {
	Condition string
}

// ResultCondition gates on the outcome of the source tool node.
type ResultCondition struct {
	Successful bool
}

func (Unconditional) guard()   {}
func (LLMCondition) guard()    {}
func (ResultCondition) guard() {}

// Edge is a compiled, guarded transition.
type Edge struct {
	ID     string
	Source string
	Target string
	Guard  Guard
}

// Graph is the compiled workflow.
type Graph struct {
	Nodes map[string]Node
	Edges map[string]*Edge
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		Nodes: make(map[string]Node),
		Edges: make(map[string]*Edge),
	}
}

// OutgoingEdges returns the edges leaving nodeID in edge-order priority.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	n, ok := g.Nodes[nodeID]
	if !ok {
		return nil
	}
	var out []*Edge
	for _, id := range Base(n).EdgeOrder {
		if e, ok := g.Edges[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// RewriteToolIDs replaces friendly tool names with resolved handles in every
// tool node and every scripted-speech tool list. It returns the number of
// references rewritten.
func (g *Graph) RewriteToolIDs(handles map[string]string) int {
	rewritten := 0
	for _, n := range g.Nodes {
		switch v := n.(type) {
		case *ToolInvocation:
			if h, ok := handles[v.ToolID]; ok && h != v.ToolID {
				v.ToolID = h
				rewritten++
			}
		case *ScriptedSpeech:
			for i, id := range v.ToolIDs {
				if h, ok := handles[id]; ok && h != id {
					v.ToolIDs[i] = h
					rewritten++
				}
			}
		}
	}
	return rewritten
}
