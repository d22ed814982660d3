package linker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/flowc/pkg/compiler"
	"github.com/ravi-parthasarathy/flowc/pkg/engineapi"
	"github.com/ravi-parthasarathy/flowc/pkg/linker"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

type fakeRegistry struct {
	existing   map[string]string // name|url -> id
	registered []string
	failWith   error
	findErr    error
}

func (r *fakeRegistry) FindTool(_ context.Context, name, url string) (string, bool, error) {
	if r.findErr != nil {
		return "", false, r.findErr
	}
	id, ok := r.existing[name+"|"+url]
	return id, ok, nil
}

func (r *fakeRegistry) RegisterTool(_ context.Context, def engineapi.ToolDefinition) (string, error) {
	if r.failWith != nil {
		return "", r.failWith
	}
	r.registered = append(r.registered, def.Name)
	return fmt.Sprintf("tool_%s_%d", def.Name, len(r.registered)), nil
}

func hook(name string) engineapi.ToolDefinition {
	return engineapi.ToolDefinition{Name: name, URL: "https://hooks.example.com/" + name, Method: "POST"}
}

func TestLink_Idempotent(t *testing.T) {
	reg := &fakeRegistry{}
	l := linker.New(reg)
	ctx := context.Background()

	first, err := l.Link(ctx, hook("crm"))
	require.NoError(t, err)
	second, err := l.Link(ctx, hook("crm"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"crm"}, reg.registered, "tool must be registered once")
}

func TestLink_CacheSurvivesRegistryFailure(t *testing.T) {
	reg := &fakeRegistry{}
	l := linker.New(reg)
	ctx := context.Background()

	first := l.RegisterAndRewrite(ctx, []engineapi.ToolDefinition{hook("crm")}, nil)
	require.Contains(t, first, "crm")

	reg.failWith = errors.New("engine down")
	reg.findErr = errors.New("engine down")
	second := l.RegisterAndRewrite(ctx, []engineapi.ToolDefinition{hook("crm"), hook("billing")}, nil)

	assert.Equal(t, first["crm"], second["crm"])
	assert.NotContains(t, second, "billing")
}

func TestLink_ReusesExistingRemoteTool(t *testing.T) {
	def := hook("crm")
	reg := &fakeRegistry{existing: map[string]string{"crm|" + def.URL: "tool_existing"}}
	l := linker.New(reg)

	h, err := l.Link(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "tool_existing", h)
	assert.Empty(t, reg.registered)
}

func TestLink_InvalidDefinition(t *testing.T) {
	reg := &fakeRegistry{}
	l := linker.New(reg)

	_, err := l.Link(context.Background(), engineapi.ToolDefinition{Name: "bad", URL: "not a url"})
	require.Error(t, err)
	_, err = l.Link(context.Background(), engineapi.ToolDefinition{Name: "bad", URL: "https://x", Method: "BREW"})
	require.Error(t, err)
	assert.Empty(t, reg.registered, "invalid tools must not reach the registry")
}

func TestLink_WorkspaceIsolation(t *testing.T) {
	reg := &fakeRegistry{}
	cache := linker.NewMemoryCache()
	a := linker.New(reg, linker.WithCache(cache), linker.WithWorkspace("acme"))
	b := linker.New(reg, linker.WithCache(cache), linker.WithWorkspace("globex"))

	ha, err := a.Link(context.Background(), hook("crm"))
	require.NoError(t, err)
	hb, err := b.Link(context.Background(), hook("crm"))
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
	assert.Equal(t, 2, cache.Len())
}

func TestLink_SameNameDifferentURL(t *testing.T) {
	reg := &fakeRegistry{}
	l := linker.New(reg)
	ctx := context.Background()

	a := engineapi.ToolDefinition{Name: "book_appointment", URL: "https://app.example.com/agents/a1/scheduling"}
	b := engineapi.ToolDefinition{Name: "book_appointment", URL: "https://app.example.com/agents/a2/scheduling"}

	ha, err := l.Link(ctx, a)
	require.NoError(t, err)
	hb, err := l.Link(ctx, b)
	require.NoError(t, err)

	assert.NotEqual(t, ha, hb)
	assert.Equal(t, []string{"book_appointment", "book_appointment"}, reg.registered)

	again, err := l.Link(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, ha, again)
	assert.Len(t, reg.registered, 2)
}

func TestRegisterAndRewrite(t *testing.T) {
	wf := workflow.New()
	wf.Nodes[workflow.StartNodeID] = &workflow.Start{}
	wf.Nodes["hook"] = &workflow.ToolInvocation{ToolID: "crm"}
	wf.Nodes["broken"] = &workflow.ToolInvocation{ToolID: "bad"}
	wf.Nodes["book"] = &workflow.ScriptedSpeech{ToolIDs: []string{"crm"}}

	l := linker.New(&fakeRegistry{})
	handles := l.RegisterAndRewrite(context.Background(), []engineapi.ToolDefinition{
		hook("crm"),
		{Name: "bad"},
	}, wf)

	require.Len(t, handles, 1)
	assert.Equal(t, handles["crm"], wf.Nodes["hook"].(*workflow.ToolInvocation).ToolID)
	assert.Equal(t, "bad", wf.Nodes["broken"].(*workflow.ToolInvocation).ToolID)
	assert.Equal(t, []string{handles["crm"]}, wf.Nodes["book"].(*workflow.ScriptedSpeech).ToolIDs)
}

func TestWebhookTools(t *testing.T) {
	f := compiler.Features{Webhooks: []compiler.WebhookNode{
		{ToolName: "crm", URL: "https://crm", Method: "PUT", Phase: compiler.PhaseCreation},
		{ToolName: "later", URL: "https://later", Phase: compiler.PhaseLinked},
	}}
	tools := linker.WebhookTools(f)
	require.Len(t, tools, 1)
	assert.Equal(t, "crm", tools[0].Name)
	assert.Equal(t, "PUT", tools[0].Method)
	assert.NotEmpty(t, tools[0].Description)
}

func TestMemoryCache_Snapshot(t *testing.T) {
	ctx := context.Background()
	c := linker.NewMemoryCache()
	require.NoError(t, c.Set(ctx, linker.Key{Workspace: "w", Tool: "crm"}, "tool_1"))
	require.NoError(t, c.Set(ctx, linker.Key{Workspace: "w", Tool: "book", URL: "https://app/agents/a1/scheduling"}, "tool_2"))

	path := filepath.Join(t.TempDir(), "tools.json")
	require.NoError(t, c.SaveSnapshot(path))

	restored, err := linker.LoadSnapshot(path)
	require.NoError(t, err)
	h, ok, err := restored.Get(ctx, linker.Key{Workspace: "w", Tool: "crm"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tool_1", h)
	assert.Equal(t, 2, restored.Len())

	h, ok, err = restored.Get(ctx, linker.Key{Workspace: "w", Tool: "book", URL: "https://app/agents/a1/scheduling"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tool_2", h)
	_, ok, err = restored.Get(ctx, linker.Key{Workspace: "w", Tool: "book"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = linker.LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := linker.ConnectRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cache := linker.NewRedisCache(client, "flowc:test:"+t.Name())
	key := linker.Key{Workspace: "w", Tool: "crm"}
	t.Cleanup(func() { client.Del(ctx, "flowc:test:"+t.Name()+":w:crm") })

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, key, "tool_9"))
	h, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tool_9", h)
}
