package workflow_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

func sample() *workflow.Graph {
	g := workflow.New()
	g.Nodes[workflow.StartNodeID] = &workflow.Start{Header: workflow.Header{EdgeOrder: []string{"e1"}}}
	g.Nodes["ask"] = &workflow.ScriptedSpeech{
		Header:  workflow.Header{Position: flow.Position{X: 1, Y: 2}, EdgeOrder: []string{"e2", "e3"}},
		Label:   "Ask",
		Prompt:  "Ask the question.",
		ToolIDs: []string{"book_appointment"},
	}
	g.Nodes["xfer"] = &workflow.Transfer{PhoneNumber: "+15550100", Style: workflow.TransferBlind}
	g.Nodes["hook"] = &workflow.ToolInvocation{ToolID: "crm_update", Header: workflow.Header{EdgeOrder: []string{"e4"}}}
	g.Nodes["bye"] = &workflow.Terminal{}
	g.Edges["e1"] = &workflow.Edge{ID: "e1", Source: workflow.StartNodeID, Target: "ask", Guard: workflow.Unconditional{}}
	g.Edges["e2"] = &workflow.Edge{ID: "e2", Source: "ask", Target: "xfer", Guard: workflow.LLMCondition{Condition: "user wants a human"}}
	g.Edges["e3"] = &workflow.Edge{ID: "e3", Source: "ask", Target: "hook", Guard: workflow.Unconditional{}}
	g.Edges["e4"] = &workflow.Edge{ID: "e4", Source: "hook", Target: "bye", Guard: workflow.ResultCondition{Successful: true}}
	return g
}

func TestMarshalJSON_WireShape(t *testing.T) {
	data, err := json.Marshal(sample())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		Nodes map[string]map[string]any `json:"nodes"`
		Edges map[string]map[string]any `json:"edges"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	wantTypes := map[string]string{
		workflow.StartNodeID: "start",
		"ask":                "override_agent",
		"xfer":               "phone_number",
		"hook":               "tool",
		"bye":                "end",
	}
	for id, want := range wantTypes {
		if got.Nodes[id]["type"] != want {
			t.Errorf("node %s type = %v, want %s", id, got.Nodes[id]["type"], want)
		}
		if _, ok := got.Nodes[id]["edge_order"].([]any); !ok {
			t.Errorf("node %s edge_order = %#v, want array", id, got.Nodes[id]["edge_order"])
		}
	}

	ask := got.Nodes["ask"]
	if ask["additional_prompt"] != "Ask the question." || ask["label"] != "Ask" {
		t.Errorf("ask = %v", ask)
	}
	if pos := ask["position"].(map[string]any); pos["x"] != 1.0 || pos["y"] != 2.0 {
		t.Errorf("position = %v", pos)
	}

	xfer := got.Nodes["xfer"]
	dest := xfer["transfer_destination"].(map[string]any)
	if dest["type"] != "phone" || dest["phone_number"] != "+15550100" || xfer["transfer_type"] != "blind" {
		t.Errorf("xfer = %v", xfer)
	}

	tools := got.Nodes["hook"]["tools"].([]any)
	if len(tools) != 1 || tools[0].(map[string]any)["tool_id"] != "crm_update" {
		t.Errorf("tools = %v", tools)
	}

	cond := func(id string) map[string]any { return got.Edges[id]["forward_condition"].(map[string]any) }
	if cond("e1")["type"] != "unconditional" {
		t.Errorf("e1 = %v", cond("e1"))
	}
	if c := cond("e2"); c["type"] != "llm" || c["condition"] != "user wants a human" {
		t.Errorf("e2 = %v", c)
	}
	if c := cond("e4"); c["type"] != "result" || c["successful"] != true {
		t.Errorf("e4 = %v", c)
	}
	if got.Edges["e2"]["source"] != "ask" || got.Edges["e2"]["target"] != "xfer" {
		t.Errorf("e2 endpoints = %v", got.Edges["e2"])
	}
}

func TestValidate_Valid(t *testing.T) {
	v := workflow.Validate(sample())
	if !v.Valid || len(v.Errors) != 0 {
		t.Errorf("validation = %+v, want valid", v)
	}
}

func TestValidate_SingleNonStartNode(t *testing.T) {
	g := workflow.New()
	g.Nodes["only"] = &workflow.Terminal{}
	v := workflow.Validate(g)
	if v.Valid {
		t.Fatal("expected invalid")
	}
	if len(v.Errors) != 1 || !strings.Contains(v.Errors[0], "must have a start node") {
		t.Errorf("errors = %v", v.Errors)
	}
}

func TestValidate_OnlyStart(t *testing.T) {
	g := workflow.New()
	g.Nodes[workflow.StartNodeID] = &workflow.Start{}
	v := workflow.Validate(g)
	if v.Valid || len(v.Errors) != 1 || !strings.Contains(v.Errors[0], "at least one node besides start") {
		t.Errorf("validation = %+v", v)
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	g := workflow.New()
	g.Edges["dangling"] = &workflow.Edge{ID: "dangling", Source: "a", Target: "b", Guard: workflow.Unconditional{}}
	errs := workflow.Lint(g)
	// no non-start node, no start node, unknown source, unknown target
	if len(errs) != 4 {
		t.Fatalf("errors = %v, want 4", errs)
	}
	if errs[3].EdgeID != "dangling" || !strings.Contains(errs[3].Error(), `unknown target node "b"`) {
		t.Errorf("last error = %v", errs[3])
	}
	if err := workflow.ValidateErr(g); err == nil || !strings.Contains(err.Error(), "workflow validation failed") {
		t.Errorf("ValidateErr = %v", err)
	}
}

func TestValidate_MultipleStarts(t *testing.T) {
	g := sample()
	g.Nodes["start_2"] = &workflow.Start{}
	v := workflow.Validate(g)
	if v.Valid {
		t.Fatal("expected invalid with two start nodes")
	}
}

func TestValidate_NilEdge(t *testing.T) {
	g := sample()
	g.Edges["e9"] = nil
	v := workflow.Validate(g)
	if v.Valid {
		t.Fatal("expected invalid with a nil edge")
	}
	if len(v.Errors) != 1 || v.Errors[0] != `edge "e9": edge is nil` {
		t.Errorf("errors = %v", v.Errors)
	}
	if _, err := json.Marshal(g); err == nil {
		t.Error("expected marshal error for a nil edge")
	}
}

func TestRewriteToolIDs(t *testing.T) {
	g := sample()
	n := g.RewriteToolIDs(map[string]string{"crm_update": "tool_abc", "book_appointment": "tool_xyz"})
	if n != 2 {
		t.Errorf("rewritten = %d, want 2", n)
	}
	if g.Nodes["hook"].(*workflow.ToolInvocation).ToolID != "tool_abc" {
		t.Error("tool node not rewritten")
	}
	if g.Nodes["ask"].(*workflow.ScriptedSpeech).ToolIDs[0] != "tool_xyz" {
		t.Error("scripted speech tool list not rewritten")
	}
}

func TestOrder(t *testing.T) {
	order := workflow.Order(sample())
	want := []string{workflow.StartNodeID, "ask", "xfer", "hook", "bye"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRenderDOT(t *testing.T) {
	out, err := workflow.RenderDOT(sample(), "demo")
	if err != nil {
		t.Fatalf("RenderDOT: %v", err)
	}
	if !strings.Contains(out, "digraph") {
		t.Errorf("missing digraph header:\n%s", out)
	}
	for _, want := range []string{`"ask"`, `"hook"`, "user wants a human"} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %s:\n%s", want, out)
		}
	}
}

func TestRenderText(t *testing.T) {
	out := workflow.RenderText(sample())
	if !strings.Contains(out, "5 nodes, 4 edges") {
		t.Errorf("header missing:\n%s", out)
	}
	if !strings.Contains(out, "[result: success]") {
		t.Errorf("result guard missing:\n%s", out)
	}
}
