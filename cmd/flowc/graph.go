package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <flow>",
		Short: "Print a human-readable summary of a source flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadFlow(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "dot":
				s, err := renderFlowDOT(g)
				if err != nil {
					return err
				}
				fmt.Fprint(w, s)
			case "text", "":
				fmt.Fprint(w, renderFlowText(g))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen runes, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// nodeSummary lists a node's scalar config values, sorted by key, skipping
// the type tag already shown in its own column.
func nodeSummary(n *flow.Node) string {
	keys := make([]string, 0, len(n.Config))
	for k := range n.Config {
		if k != "type" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := n.Config[k].(type) {
		case string:
			parts = append(parts, k+"="+truncate(v, 60))
		case float64, bool:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

// renderFlowText renders nodes in editor order, then edges with their handles.
func renderFlowText(g *flow.Graph) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Flow  (%d nodes, %d edges)\n", len(g.Nodes), len(g.Edges))

	maxIDLen := 4
	for _, n := range g.Nodes {
		if len(n.ID) > maxIDLen {
			maxIDLen = len(n.ID)
		}
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for i := range g.Nodes {
		n := &g.Nodes[i]
		fmt.Fprintf(&sb, "  %-*s  %-12s  %s\n", maxIDLen, n.ID, n.TypeTag(), nodeSummary(n))
	}

	fmt.Fprintf(&sb, "\nEdges:\n")
	for _, e := range g.Edges {
		if e.SourceHandle != "" {
			fmt.Fprintf(&sb, "  %-*s  →  %s  [%s]\n", maxIDLen, e.Source, e.Target, e.SourceHandle)
		} else {
			fmt.Fprintf(&sb, "  %-*s  →  %s\n", maxIDLen, e.Source, e.Target)
		}
	}
	return sb.String()
}

// renderFlowDOT renders the source flow as a digraph; edges whose endpoints
// are missing are skipped.
func renderFlowDOT(g *flow.Graph) (string, error) {
	const graphName = `"flow"`
	out := gographviz.NewGraph()
	if err := out.SetName(graphName); err != nil {
		return "", err
	}
	if err := out.SetDir(true); err != nil {
		return "", err
	}

	known := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if known[n.ID] {
			continue
		}
		known[n.ID] = true
		label := n.ID + "\n" + n.TypeTag()
		attrs := map[string]string{"label": strconv.Quote(label)}
		if n.Kind() == flow.KindCondition {
			attrs["shape"] = "diamond"
		}
		if err := out.AddNode(graphName, strconv.Quote(n.ID), attrs); err != nil {
			return "", fmt.Errorf("render node %q: %w", n.ID, err)
		}
	}

	for _, e := range g.Edges {
		if !known[e.Source] || !known[e.Target] {
			continue
		}
		attrs := map[string]string{}
		if e.SourceHandle != "" {
			attrs["label"] = strconv.Quote(e.SourceHandle)
		}
		if err := out.AddEdge(strconv.Quote(e.Source), strconv.Quote(e.Target), true, attrs); err != nil {
			return "", fmt.Errorf("render edge %q: %w", e.ID, err)
		}
	}
	return out.String(), nil
}
