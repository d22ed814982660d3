// Package linker resolves friendly tool names to the handles the voice engine
// assigns, registering tools on first use, and rewrites compiled workflows to
// reference those handles.
package linker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/ravi-parthasarathy/flowc/pkg/compiler"
	"github.com/ravi-parthasarathy/flowc/pkg/engineapi"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

// Registry is the engine's tool registry.
type Registry interface {
	FindTool(ctx context.Context, name, url string) (id string, found bool, err error)
	RegisterTool(ctx context.Context, def engineapi.ToolDefinition) (string, error)
}

// Linker links tool definitions against a Registry through a Cache.
type Linker struct {
	registry  Registry
	cache     Cache
	workspace string
	validate  *validator.Validate
	log       *slog.Logger
}

// Option configures a Linker.
type Option func(*Linker)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option { return func(l *Linker) { l.cache = c } }

// WithWorkspace scopes cache keys to a workspace (typically the API key's
// account), so handles never leak between accounts.
func WithWorkspace(ws string) Option { return func(l *Linker) { l.workspace = ws } }

// WithLogger sets the logger; defaults to slog.Default().
func WithLogger(log *slog.Logger) Option { return func(l *Linker) { l.log = log } }

// New returns a Linker backed by reg.
func New(reg Registry, opts ...Option) *Linker {
	l := &Linker{registry: reg, validate: validator.New()}
	for _, opt := range opts {
		opt(l)
	}
	if l.cache == nil {
		l.cache = NewMemoryCache()
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Link returns the engine handle for def: from the cache, else from an
// existing tool with the same name and URL, else by registering it.
func (l *Linker) Link(ctx context.Context, def engineapi.ToolDefinition) (string, error) {
	if err := l.validate.Struct(def); err != nil {
		return "", fmt.Errorf("tool %q: invalid definition: %w", def.Name, err)
	}
	key := Key{Workspace: l.workspace, Tool: def.Name, URL: def.URL}

	h, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.log.Warn("tool cache lookup failed", "tool", def.Name, "err", err)
	} else if ok {
		return h, nil
	}

	h, found, err := l.registry.FindTool(ctx, def.Name, def.URL)
	if err != nil {
		return "", fmt.Errorf("tool %q: %w", def.Name, err)
	}
	if !found {
		if h, err = l.registry.RegisterTool(ctx, def); err != nil {
			return "", fmt.Errorf("tool %q: %w", def.Name, err)
		}
		l.log.Info("tool registered", "tool", def.Name, "handle", h)
	}

	if err := l.cache.Set(ctx, key, h); err != nil {
		l.log.Warn("tool cache store failed", "tool", def.Name, "err", err)
	}
	return h, nil
}

// RegisterAndRewrite links every tool and rewrites wf's tool references to
// the resolved handles. A tool that fails to link is logged and left under
// its friendly name; it never aborts the others. wf may be nil.
func (l *Linker) RegisterAndRewrite(ctx context.Context, tools []engineapi.ToolDefinition, wf *workflow.Graph) map[string]string {
	handles := make(map[string]string, len(tools))
	for _, def := range tools {
		h, err := l.Link(ctx, def)
		if err != nil {
			l.log.Warn("tool link failed, keeping friendly name", "tool", def.Name, "err", err)
			continue
		}
		handles[def.Name] = h
	}
	if wf != nil && len(handles) > 0 {
		n := wf.RewriteToolIDs(handles)
		l.log.Debug("workflow tool references rewritten", "count", n)
	}
	return handles
}

// WebhookTools builds tool definitions for the custom webhooks found by the
// feature analyzer. These need no agent identity and can be linked before
// the agent exists.
func WebhookTools(f compiler.Features) []engineapi.ToolDefinition {
	var out []engineapi.ToolDefinition
	for _, w := range f.Webhooks {
		if w.Phase != compiler.PhaseCreation {
			continue
		}
		desc := w.Description
		if desc == "" {
			desc = "Custom webhook " + w.ToolName
		}
		out = append(out, engineapi.ToolDefinition{
			Name:        w.ToolName,
			Description: desc,
			URL:         w.URL,
			Method:      w.Method,
			Headers:     w.Headers,
			Payload:     w.Payload,
		})
	}
	return out
}
