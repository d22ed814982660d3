package compiler

import (
	"fmt"
	"strings"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

const (
	phraseAgreement = "User indicates agreement"
	phraseRefusal   = "User indicates refusal"
)

// link is a resolved transition between flow node ids, before assembly.
type link struct {
	source string
	target string
	guard  workflow.Guard
}

// resolveLinks rewrites the flow's edges so that no condition node remains.
// Edges into a condition are consumed; each edge out of a condition is
// replicated once per (transitive) non-condition predecessor. Output follows
// flow edge order, so the result is deterministic.
func (c *compilation) resolveLinks() []link {
	var links []link
	for _, e := range c.graph.Edges {
		if c.isCondition(e.Target) {
			continue
		}
		src, ok := c.index[e.Source]
		if !ok || src.Kind() != flow.KindCondition {
			links = append(links, link{source: e.Source, target: e.Target, guard: c.passGuard(e)})
			continue
		}
		branch := c.branchGuard(src, e)
		for _, p := range c.predecessors(src.ID, map[string]bool{src.ID: true}) {
			links = append(links, link{source: p.source, target: e.Target, guard: conjoin(p.guard, branch)})
		}
	}
	return links
}

type predecessor struct {
	source string
	guard  workflow.Guard
}

// predecessors returns every non-condition node that reaches condID, walking
// back through chained conditions. The guard accumulates the branch taken at
// each intermediate condition. visited breaks condition cycles.
func (c *compilation) predecessors(condID string, visited map[string]bool) []predecessor {
	var out []predecessor
	for _, e := range c.graph.IncomingEdges(condID) {
		src, ok := c.index[e.Source]
		if !ok || src.Kind() != flow.KindCondition {
			out = append(out, predecessor{source: e.Source, guard: c.passGuard(e)})
			continue
		}
		if visited[src.ID] {
			continue
		}
		visited[src.ID] = true
		branch := c.branchGuard(src, e)
		for _, p := range c.predecessors(src.ID, visited) {
			out = append(out, predecessor{source: p.source, guard: conjoin(p.guard, branch)})
		}
	}
	return out
}

func (c *compilation) isCondition(id string) bool {
	n, ok := c.index[id]
	return ok && n.Kind() == flow.KindCondition
}

// passGuard is the guard for an edge whose source is not a condition. Only
// webhook outcome handles carry meaning here.
func (c *compilation) passGuard(e flow.Edge) workflow.Guard {
	src, ok := c.index[e.Source]
	if !ok || src.Kind() != flow.KindWebhook {
		return workflow.Unconditional{}
	}
	switch normalizeHandle(e.SourceHandle) {
	case "success":
		return workflow.ResultCondition{Successful: true}
	case "failure", "error":
		return workflow.ResultCondition{Successful: false}
	}
	return workflow.Unconditional{}
}

// branchGuard derives the guard for an edge leaving condition node cond.
func (c *compilation) branchGuard(cond *flow.Node, e flow.Edge) workflow.Guard {
	handle := strings.TrimSpace(e.SourceHandle)
	if rule, ok := matchRule(decode[flow.ConditionConfig](c, cond).Rules, e.Target, handle); ok {
		return workflow.LLMCondition{Condition: ruleCondition(rule, handle)}
	}
	switch normalizeHandle(handle) {
	case "":
		return workflow.Unconditional{}
	case "true", "yes":
		return workflow.LLMCondition{Condition: phraseAgreement}
	case "false", "no":
		return workflow.LLMCondition{Condition: phraseRefusal}
	}
	return workflow.LLMCondition{Condition: fmt.Sprintf("User's response matches '%s'", handle)}
}

func matchRule(rules []flow.BranchRule, target, handle string) (flow.BranchRule, bool) {
	for _, r := range rules {
		if r.Target != "" && r.Target == target {
			return r, true
		}
	}
	if handle == "" {
		return flow.BranchRule{}, false
	}
	for _, r := range rules {
		if handle == r.Handle || handle == r.ID {
			return r, true
		}
	}
	return flow.BranchRule{}, false
}

func ruleCondition(r flow.BranchRule, handle string) string {
	value := strings.TrimSpace(r.Value)
	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case "yes_no":
		v := value
		if v == "" {
			v = handle
		}
		switch normalizeHandle(v) {
		case "no", "false", "refuse", "decline":
			return phraseRefusal
		}
		return phraseAgreement
	case "sentiment":
		s := strings.ToLower(value)
		switch s {
		case "positive", "negative", "neutral":
		default:
			s = "neutral"
		}
		return fmt.Sprintf("User expresses %s sentiment", s)
	}
	return fmt.Sprintf("User's response contains '%s'", value)
}

// conjoin combines the guard accumulated so far with the next branch guard.
// Natural-language conditions are joined with " and "; when a result guard
// meets a natural-language one the latter wins, since an edge carries a
// single forward condition.
func conjoin(a, b workflow.Guard) workflow.Guard {
	if _, ok := a.(workflow.Unconditional); ok || a == nil {
		return b
	}
	if _, ok := b.(workflow.Unconditional); ok || b == nil {
		return a
	}
	la, aText := a.(workflow.LLMCondition)
	lb, bText := b.(workflow.LLMCondition)
	switch {
	case aText && bText:
		return workflow.LLMCondition{Condition: la.Condition + " and " + lb.Condition}
	case aText:
		return a
	case bText:
		return b
	}
	return a
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
