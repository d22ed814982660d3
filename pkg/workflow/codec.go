package workflow

import (
	"encoding/json"
	"fmt"
)

// GuardJSON returns the engine's forward_condition object for a guard.
func GuardJSON(g Guard) map[string]any {
	switch v := g.(type) {
	case LLMCondition:
		return map[string]any{"type": "llm", "condition": v.Condition}
	case ResultCondition:
		return map[string]any{"type": "result", "successful": v.Successful}
	default:
		return map[string]any{"type": "unconditional"}
	}
}

// NodeJSON returns the engine's wire object for a compiled node.
func NodeJSON(n Node) map[string]any {
	h := Base(n)
	order := h.EdgeOrder
	if order == nil {
		order = []string{}
	}
	out := map[string]any{
		"type":       n.wireType(),
		"position":   map[string]float64{"x": h.Position.X, "y": h.Position.Y},
		"edge_order": order,
	}

	switch v := n.(type) {
	case *ScriptedSpeech:
		overrideAgent(out, v.Label, v.Prompt, v.ToolIDs)
	case *GenericInstruction:
		overrideAgent(out, v.Label, v.Prompt, nil)
	case *Transfer:
		style := v.Style
		if style == "" {
			style = TransferConference
		}
		out["transfer_destination"] = map[string]string{
			"type":         "phone",
			"phone_number": v.PhoneNumber,
		}
		out["transfer_type"] = string(style)
	case *ToolInvocation:
		out["tools"] = []map[string]string{{"tool_id": v.ToolID}}
	}
	return out
}

func overrideAgent(out map[string]any, label, prompt string, toolIDs []string) {
	if toolIDs == nil {
		toolIDs = []string{}
	}
	if label != "" {
		out["label"] = label
	}
	out["additional_prompt"] = prompt
	out["additional_tool_ids"] = toolIDs
	out["additional_knowledge_base"] = []any{}
	out["conversation_config"] = map[string]any{}
}

// MarshalJSON encodes the workflow in the engine's
// {"nodes": {...}, "edges": {...}} shape.
func (g Graph) MarshalJSON() ([]byte, error) {
	nodes := make(map[string]any, len(g.Nodes))
	for id, n := range g.Nodes {
		if n == nil {
			return nil, fmt.Errorf("workflow node %q is nil", id)
		}
		nodes[id] = NodeJSON(n)
	}
	edges := make(map[string]any, len(g.Edges))
	for id, e := range g.Edges {
		if e == nil {
			return nil, fmt.Errorf("workflow edge %q is nil", id)
		}
		edges[id] = map[string]any{
			"source":            e.Source,
			"target":            e.Target,
			"forward_condition": GuardJSON(e.Guard),
		}
	}
	return json.Marshal(map[string]any{
		"nodes": nodes,
		"edges": edges,
	})
}
