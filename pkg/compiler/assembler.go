package compiler

import (
	"fmt"

	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

// assembler builds the workflow graph. The edge counter is per compile, so
// edge ids are stable for a given input.
type assembler struct {
	wf      *workflow.Graph
	counter int
}

func newAssembler() *assembler {
	wf := workflow.New()
	wf.Nodes[workflow.StartNodeID] = &workflow.Start{}
	return &assembler{wf: wf}
}

// addNode registers a compiled node. It refuses ids already taken, which
// protects the synthetic start node from being overwritten.
func (a *assembler) addNode(id string, n workflow.Node) bool {
	if _, exists := a.wf.Nodes[id]; exists {
		return false
	}
	a.wf.Nodes[id] = n
	return true
}

// addEdge wires source to target and appends the edge to the source's edge
// order. Edges from a source that was never compiled are skipped. Unknown
// targets are kept so the validator can report them.
func (a *assembler) addEdge(source, target string, guard workflow.Guard) (string, bool) {
	src, ok := a.wf.Nodes[source]
	if !ok {
		return "", false
	}
	if guard == nil {
		guard = workflow.Unconditional{}
	}
	a.counter++
	id := fmt.Sprintf("edge_%s_to_%s_%d", source, target, a.counter)
	a.wf.Edges[id] = &workflow.Edge{ID: id, Source: source, Target: target, Guard: guard}
	h := workflow.Base(src)
	h.EdgeOrder = append(h.EdgeOrder, id)
	return id, true
}
