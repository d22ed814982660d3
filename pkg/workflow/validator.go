package workflow

import (
	"fmt"
	"sort"
	"strings"
)

// LintError describes a structural problem in a compiled workflow.
type LintError struct {
	NodeID  string
	EdgeID  string
	Message string
}

func (e LintError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("edge %q: %s", e.EdgeID, e.Message)
	case e.NodeID != "":
		return fmt.Sprintf("node %q: %s", e.NodeID, e.Message)
	}
	return e.Message
}

// Validation is the outcome callers inspect before activating a workflow.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Lint checks a workflow for structural correctness.
// Returns all discovered errors (not just the first).
func Lint(g *Graph) []LintError {
	var errs []LintError
	if g == nil {
		return []LintError{{Message: "workflow is nil"}}
	}

	var starts []string
	for id, n := range g.Nodes {
		if _, ok := n.(*Start); ok {
			starts = append(starts, id)
		}
	}
	sort.Strings(starts)

	if len(g.Nodes)-len(starts) < 1 {
		errs = append(errs, LintError{Message: "workflow must have at least one node besides start"})
	}
	switch len(starts) {
	case 0:
		errs = append(errs, LintError{Message: "workflow must have a start node"})
	case 1:
		// good
	default:
		errs = append(errs, LintError{Message: fmt.Sprintf("workflow has %d start nodes (%s); exactly one required",
			len(starts), strings.Join(starts, ", "))})
	}

	// Sorted so the report is stable across runs.
	edgeIDs := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		edgeIDs = append(edgeIDs, id)
	}
	sort.Strings(edgeIDs)
	for _, id := range edgeIDs {
		e := g.Edges[id]
		if e == nil {
			errs = append(errs, LintError{EdgeID: id, Message: "edge is nil"})
			continue
		}
		if _, ok := g.Nodes[e.Source]; !ok {
			errs = append(errs, LintError{EdgeID: id, Message: fmt.Sprintf("references unknown source node %q", e.Source)})
		}
		if _, ok := g.Nodes[e.Target]; !ok {
			errs = append(errs, LintError{EdgeID: id, Message: fmt.Sprintf("references unknown target node %q", e.Target)})
		}
	}
	return errs
}

// Validate runs Lint and folds the findings into a Validation.
func Validate(g *Graph) Validation {
	errs := Lint(g)
	v := Validation{Valid: len(errs) == 0, Errors: make([]string, len(errs))}
	for i, e := range errs {
		v.Errors[i] = e.Error()
	}
	return v
}

// ValidateErr calls Lint and returns nil if there are no errors, or a
// combined error message listing all lint errors.
func ValidateErr(g *Graph) error {
	errs := Lint(g)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("workflow validation failed:\n  %s", strings.Join(msgs, "\n  "))
}
