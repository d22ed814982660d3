// Package flow models the author-facing automation graph produced by the
// visual flow editor. A Graph is read-only input to the compiler.
package flow

import "strings"

// Kind is the semantic type of a flow node.
type Kind string

const (
	KindStart       Kind = "start"
	KindTrigger     Kind = "trigger"
	KindMessage     Kind = "message"
	KindQuestion    Kind = "question"
	KindTransfer    Kind = "transfer"
	KindEnd         Kind = "end"
	KindDelay       Kind = "delay"
	KindAppointment Kind = "appointment"
	KindForm        Kind = "form"
	KindWebhook     Kind = "webhook"
	KindCondition   Kind = "condition"
	KindUnknown     Kind = "unknown"
)

var knownKinds = map[Kind]bool{
	KindStart:       true,
	KindTrigger:     true,
	KindMessage:     true,
	KindQuestion:    true,
	KindTransfer:    true,
	KindEnd:         true,
	KindDelay:       true,
	KindAppointment: true,
	KindForm:        true,
	KindWebhook:     true,
	KindCondition:   true,
}

// ParseKind maps a raw type tag onto the closed Kind set. Anything that is
// not a known kind (including the empty string) becomes KindUnknown.
func ParseKind(tag string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(tag)))
	if knownKinds[k] {
		return k
	}
	return KindUnknown
}

// IsEntryMarker reports whether nodes of this kind only mark where the
// conversation begins.
func (k Kind) IsEntryMarker() bool {
	return k == KindStart || k == KindTrigger
}

// Position is the editor canvas location. The compiler passes it through.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step of the flow.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type,omitempty"`
	Position Position       `json:"position"`
	Config   map[string]any `json:"config,omitempty"`
}

// TypeTag returns the raw semantic tag: config.type when set, else the
// node's own type, else "unknown".
func (n *Node) TypeTag() string {
	if s, ok := n.Config["type"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	if n.Type != "" {
		return n.Type
	}
	return string(KindUnknown)
}

// Kind returns the node's semantic kind.
func (n *Node) Kind() Kind {
	return ParseKind(n.TypeTag())
}

// ConfigString returns a string config value, or "" if absent or not a string.
func (n *Node) ConfigString(key string) string {
	s, _ := n.Config[key].(string)
	return s
}

// Edge is a directed transition between two nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// Graph is a complete flow as persisted by the editor.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Index returns a lookup table from node id to node. Later duplicates of an
// id are ignored so the first definition wins.
func (g *Graph) Index() map[string]*Node {
	idx := make(map[string]*Node, len(g.Nodes))
	for i := range g.Nodes {
		if _, dup := idx[g.Nodes[i].ID]; !dup {
			idx[g.Nodes[i].ID] = &g.Nodes[i]
		}
	}
	return idx
}

// OutgoingEdges returns all edges leaving nodeID, in definition order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns all edges arriving at nodeID, in definition order.
func (g *Graph) IncomingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// NodesOfKind returns the nodes with the given semantic kind, in definition order.
func (g *Graph) NodesOfKind(k Kind) []*Node {
	var out []*Node
	for i := range g.Nodes {
		if g.Nodes[i].Kind() == k {
			out = append(out, &g.Nodes[i])
		}
	}
	return out
}

// FormIDs returns the distinct formId values referenced by form nodes, in
// node order.
func (g *Graph) FormIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, n := range g.NodesOfKind(KindForm) {
		id := n.ConfigString("formId")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
