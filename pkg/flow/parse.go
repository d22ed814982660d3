package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// ParseJSON decodes an editor export ({"nodes": [...], "edges": [...]}).
func ParseJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("flow json: %w", err)
	}
	return &g, nil
}

// ParseDOT parses a hand-authored flow written as a Graphviz digraph.
//
// Node attributes become config entries; "type" selects the node kind and
// "pos" ("x,y") sets the canvas position. Attribute values that look like
// JSON arrays or objects are decoded, so rules and field lists can be written
// inline. An edge's "handle" attribute (or its "label", or a source port as in
// `check:yes -> next`) becomes the edge's source handle.
func ParseDOT(src string) (*Graph, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	g := &Graph{}
	for _, id := range collector.order {
		attrs := collector.nodes[id]
		n := Node{ID: id, Config: make(map[string]any, len(attrs))}
		for k, v := range attrs {
			switch k {
			case "type":
				n.Type = v
			case "pos":
				n.Position = parsePos(v)
			default:
				n.Config[k] = attrValue(v)
			}
		}
		g.Nodes = append(g.Nodes, n)
	}

	for i, e := range collector.edges {
		id := e.attrs["id"]
		if id == "" {
			id = fmt.Sprintf("e%d", i+1)
		}
		handle := e.attrs["handle"]
		if handle == "" {
			handle = e.attrs["label"]
		}
		if handle == "" {
			handle = e.port
		}
		g.Edges = append(g.Edges, Edge{
			ID:           id,
			Source:       e.from,
			Target:       e.to,
			SourceHandle: handle,
		})
	}
	return g, nil
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

type rawEdge struct {
	from, to string
	port     string
	attrs    map[string]string
}

// dotCollector implements gographviz.Interface without attribute validation
// and remembers node declaration order, which start resolution depends on.
type dotCollector struct {
	name  string
	order []string
	nodes map[string]map[string]string
	edges []rawEdge
}

func newDOTCollector() *dotCollector {
	return &dotCollector{nodes: make(map[string]map[string]string)}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) touch(id string) map[string]string {
	attrs, ok := c.nodes[id]
	if !ok {
		attrs = make(map[string]string)
		c.nodes[id] = attrs
		c.order = append(c.order, id)
	}
	return attrs
}

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	node := c.touch(unquote(name))
	for k, v := range attrs {
		node[k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, directed bool, attrs map[string]string) error {
	return c.AddPortEdge(src, "", dst, "", directed, attrs)
}

func (c *dotCollector) AddPortEdge(src, srcPort, dst, _ string, _ bool, attrs map[string]string) error {
	from, to := unquote(src), unquote(dst)
	c.touch(from)
	c.touch(to)
	edgeAttrs := make(map[string]string, len(attrs))
	for k, v := range attrs {
		edgeAttrs[k] = unquote(v)
	}
	c.edges = append(c.edges, rawEdge{
		from:  from,
		to:    to,
		port:  unquote(strings.TrimPrefix(srcPort, ":")),
		attrs: edgeAttrs,
	})
	return nil
}

func (c *dotCollector) AddAttr(_ string, _, _ string) error { return nil }

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// ─── helpers ─────────────────────────────────────────────────────────────────

// unquote strips surrounding double-quotes from a DOT attribute value and
// resolves escaped quotes inside it.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `\"`, `"`)
	}
	return s
}

// attrValue decodes JSON arrays and objects; everything else stays a string.
func attrValue(v string) any {
	t := strings.TrimSpace(v)
	if strings.HasPrefix(t, "[") || strings.HasPrefix(t, "{") {
		var decoded any
		if err := json.Unmarshal([]byte(t), &decoded); err == nil {
			return decoded
		}
	}
	return v
}

func parsePos(v string) Position {
	parts := strings.SplitN(strings.TrimSuffix(v, "!"), ",", 2)
	if len(parts) != 2 {
		return Position{}
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errX != nil || errY != nil {
		return Position{}
	}
	return Position{X: x, Y: y}
}
