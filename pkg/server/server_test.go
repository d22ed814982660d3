package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/flowc/pkg/forms"
	"github.com/ravi-parthasarathy/flowc/pkg/server"
	"github.com/ravi-parthasarathy/flowc/pkg/store"
)

type memStore struct {
	flows map[string]*store.Flow
	forms forms.Catalog
}

func newMemStore() *memStore {
	return &memStore{flows: map[string]*store.Flow{}, forms: forms.Catalog{}}
}

func (m *memStore) CreateSchema(context.Context) error { return nil }
func (m *memStore) DropSchema(context.Context) error   { return nil }

func (m *memStore) SaveFlow(_ context.Context, f *store.Flow) (*store.Flow, error) {
	if f.ID == "" {
		f.ID = "flow-1"
	}
	m.flows[f.ID] = f
	return f, nil
}

func (m *memStore) GetFlow(_ context.Context, id string) (*store.Flow, error) {
	return m.flows[id], nil
}

func (m *memStore) DeleteFlow(_ context.Context, id string) error {
	delete(m.flows, id)
	return nil
}

func (m *memStore) SaveForm(_ context.Context, f forms.Form) error {
	m.forms.Add(f)
	return nil
}

func (m *memStore) LoadForms(_ context.Context, ids []string) (forms.Catalog, error) {
	out := forms.Catalog{}
	for _, id := range ids {
		if f, ok := m.forms[id]; ok {
			out.Add(f)
		}
	}
	return out, nil
}

const greetingFlow = `{
	"nodes": [
		{"id": "s", "type": "start"},
		{"id": "hi", "type": "message", "config": {"message": "Hi there"}},
		{"id": "f", "type": "form", "config": {"formId": "intake"}},
		{"id": "bye", "type": "end"}
	],
	"edges": [
		{"id": "e1", "source": "s", "target": "hi"},
		{"id": "e2", "source": "hi", "target": "f"},
		{"id": "e3", "source": "f", "target": "bye"}
	]
}`

func do(t *testing.T, srv *server.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestCompile(t *testing.T) {
	srv := server.New(nil, nil)
	code, body := do(t, srv, http.MethodPost, "/compile", greetingFlow)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "Hi there", body["firstMessage"])
	wf := body["workflow"].(map[string]any)
	nodes := wf["nodes"].(map[string]any)
	assert.Contains(t, nodes, "start_node")
	assert.NotContains(t, nodes, "s")
	assert.Equal(t, true, body["validation"].(map[string]any)["valid"])
}

func TestCompile_EmptyGraph(t *testing.T) {
	srv := server.New(nil, nil)
	code, body := do(t, srv, http.MethodPost, "/compile", `{"nodes": [], "edges": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"], "no nodes")
}

func TestCompile_InvalidBody(t *testing.T) {
	srv := server.New(nil, nil)
	code, _ := do(t, srv, http.MethodPost, "/compile", `{"nodes": `)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestValidate(t *testing.T) {
	srv := server.New(nil, nil)
	code, body := do(t, srv, http.MethodPost, "/validate", `{"nodes": [{"id": "s", "type": "start"}]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["errors"])

	code, body = do(t, srv, http.MethodPost, "/validate", `{"nodes": []}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["valid"])
}

func TestFlows(t *testing.T) {
	st := newMemStore()
	st.forms.Add(forms.Form{ID: "intake", Name: "Intake", Fields: []forms.Field{{Name: "email", Required: true}}})
	srv := server.New(st, nil)

	code, body := do(t, srv, http.MethodPost, "/flows", `{"name": "Reception", "graph": `+greetingFlow+`}`)
	require.Equal(t, http.StatusCreated, code)
	id := body["id"].(string)
	assert.NotEmpty(t, id)

	code, body = do(t, srv, http.MethodGet, "/flows/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Reception", body["name"])

	code, body = do(t, srv, http.MethodGet, "/flows/"+id+"/compile", "")
	require.Equal(t, http.StatusOK, code)
	features := body["features"].(map[string]any)
	assert.Equal(t, true, features["hasForms"])
	formsList := features["forms"].([]any)
	assert.Equal(t, "Intake", formsList[0].(map[string]any)["formName"])

	code, _ = do(t, srv, http.MethodGet, "/flows/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, srv, http.MethodGet, "/flows/missing/compile", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFlows_NoStore(t *testing.T) {
	srv := server.New(nil, nil)
	code, _ := do(t, srv, http.MethodGet, "/flows/x", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
