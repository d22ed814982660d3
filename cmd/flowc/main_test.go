package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleFlow = `{
  "nodes": [
    {"id": "s",   "type": "start"},
    {"id": "ask", "type": "question", "config": {"question": "How can I help?", "variable": "reason"}},
    {"id": "bye", "type": "end"}
  ],
  "edges": [
    {"id": "e1", "source": "s",   "target": "ask"},
    {"id": "e2", "source": "ask", "target": "bye"}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

// ─── commands ─────────────────────────────────────────────────────────────────

func TestCompileCommand_JSON(t *testing.T) {
	path := writeFile(t, "flow.json", sampleFlow)
	out, err := run(t, "compile", path)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var got struct {
		Workflow struct {
			Nodes map[string]json.RawMessage `json:"nodes"`
			Edges map[string]json.RawMessage `json:"edges"`
		} `json:"workflow"`
		Validation struct {
			Valid bool `json:"valid"`
		} `json:"validation"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if !got.Validation.Valid {
		t.Error("expected a valid workflow")
	}
	for _, id := range []string{"start_node", "ask", "bye"} {
		if _, ok := got.Workflow.Nodes[id]; !ok {
			t.Errorf("missing node %q", id)
		}
	}
	if len(got.Workflow.Edges) != 2 {
		t.Errorf("edges = %d, want 2", len(got.Workflow.Edges))
	}
}

func TestCompileCommand_TextToFile(t *testing.T) {
	path := writeFile(t, "flow.json", sampleFlow)
	dest := filepath.Join(t.TempDir(), "out.txt")
	out, err := run(t, "compile", path, "--format", "text", "--out", dest)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if out != "" {
		t.Errorf("stdout should be empty with --out, got %q", out)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "Workflow  (3 nodes, 2 edges)") {
		t.Errorf("unexpected text output:\n%s", data)
	}
}

func TestCompileCommand_UnknownFormat(t *testing.T) {
	path := writeFile(t, "flow.json", sampleFlow)
	if _, err := run(t, "compile", path, "--format", "yaml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestCompileCommand_EmptyFlow(t *testing.T) {
	path := writeFile(t, "empty.json", `{"nodes": [], "edges": []}`)
	if _, err := run(t, "compile", path); err == nil {
		t.Fatal("expected error for empty flow")
	}
}

func TestLintCommand(t *testing.T) {
	path := writeFile(t, "flow.json", sampleFlow)
	out, err := run(t, "lint", path)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if !strings.Contains(out, "OK: workflow is valid (3 nodes, 2 edges)") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestLintCommand_Invalid(t *testing.T) {
	path := writeFile(t, "only-start.json", `{"nodes": [{"id": "s", "type": "start"}], "edges": []}`)
	_, err := run(t, "lint", path)
	if err == nil {
		t.Fatal("expected lint failure for a workflow with only a start node")
	}
	if !strings.Contains(err.Error(), "at least one node besides start") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGraphCommand(t *testing.T) {
	path := writeFile(t, "flow.dot", `digraph f {
		greet [type=message, message="Hi"]
		bye   [type=end]
		greet -> bye [handle=next]
	}`)

	out, err := run(t, "graph", path)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !strings.Contains(out, "Flow  (2 nodes, 1 edges)") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "[next]") {
		t.Errorf("missing edge handle:\n%s", out)
	}

	out, err = run(t, "graph", path, "--format", "dot")
	if err != nil {
		t.Fatalf("graph dot: %v", err)
	}
	if !strings.Contains(out, "digraph") || !strings.Contains(out, `"greet"`) {
		t.Errorf("unexpected dot output:\n%s", out)
	}
}

func TestLinkCommand_RequiresAPIKey(t *testing.T) {
	t.Setenv("FLOWC_API_KEY", "")
	path := writeFile(t, "flow.json", sampleFlow)
	_, err := run(t, "link", path)
	if err == nil || !strings.Contains(err.Error(), "FLOWC_API_KEY") {
		t.Fatalf("expected missing API key error, got %v", err)
	}
}

// ─── loadFlow ─────────────────────────────────────────────────────────────────

func TestLoadFlow_JSON(t *testing.T) {
	g, err := loadFlow(writeFile(t, "flow.json", sampleFlow))
	if err != nil {
		t.Fatalf("loadFlow: %v", err)
	}
	if len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Errorf("got %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
}

func TestLoadFlow_DOT(t *testing.T) {
	g, err := loadFlow(writeFile(t, "flow.gv", `digraph f { a [type=message]; b [type=end]; a -> b }`))
	if err != nil {
		t.Fatalf("loadFlow: %v", err)
	}
	if len(g.Nodes) != 2 || g.Nodes[0].ID != "a" {
		t.Errorf("nodes = %+v", g.Nodes)
	}
}

func TestLoadFlow_Missing(t *testing.T) {
	if _, err := loadFlow(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ─── loadEnvFile ──────────────────────────────────────────────────────────────

func TestLoadEnvFile(t *testing.T) {
	// godotenv never overrides variables that are already set.
	t.Setenv("FLOWC_WORKSPACE", "")
	t.Setenv("REDIS_DB", "")
	os.Unsetenv("FLOWC_WORKSPACE")
	os.Unsetenv("REDIS_DB")
	path := writeFile(t, ".env", "FLOWC_WORKSPACE=acme\nREDIS_DB=2\n")
	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Workspace != "acme" {
		t.Errorf("workspace = %q, want acme", cfg.Workspace)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("redis db = %d, want 2", cfg.RedisDB)
	}
	if cfg.EngineURL != defaultEngineURL && os.Getenv("FLOWC_ENGINE_URL") == "" {
		t.Errorf("engine url = %q", cfg.EngineURL)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".env")
	if err := loadEnvFile(missing, false); err != nil {
		t.Errorf("implicit missing env file should be ignored, got %v", err)
	}
	if err := loadEnvFile(missing, true); err == nil {
		t.Error("explicit missing env file should fail")
	}
}

func TestLoadConfig_BadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for non-integer REDIS_DB")
	}
}

// ─── initLogger ───────────────────────────────────────────────────────────────

func TestInitLogger_ValidLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "DEBUG", "INFO"} {
		if err := initLogger(lvl, "text"); err != nil {
			t.Errorf("initLogger(%q, text): unexpected error: %v", lvl, err)
		}
	}
}

func TestInitLogger_ValidFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "TEXT", "JSON"} {
		if err := initLogger("info", format); err != nil {
			t.Errorf("initLogger(info, %q): unexpected error: %v", format, err)
		}
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	if err := initLogger("verbose", "text"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestInitLogger_InvalidFormat(t *testing.T) {
	if err := initLogger("info", "xml"); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}
