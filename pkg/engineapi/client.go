// Package engineapi is a thin client for the external voice engine's agent
// and tool endpoints.
package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 4
	defaultAuthHeader  = "xi-api-key"
	maxErrorBody       = 64 << 10
)

// Config configures a Client. Only BaseURL is required.
type Config struct {
	BaseURL string
	APIKey  string
	// AuthHeader carries the API key; defaults to "xi-api-key".
	AuthHeader  string
	Timeout     time.Duration
	MaxAttempts int
	// Backoff is the unit of the exponential retry backoff; defaults to 1s.
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the voice engine over HTTP. It is safe for concurrent use.
type Client struct {
	base        *url.URL
	apiKey      string
	authHeader  string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	http        *http.Client
	log         *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("engineapi: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("engineapi: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("engineapi: base URL %q must be http or https", cfg.BaseURL)
	}
	c := &Client{
		base:        base,
		apiKey:      cfg.APIKey,
		authHeader:  cfg.AuthHeader,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		http:        cfg.HTTPClient,
		log:         cfg.Logger,
	}
	if c.authHeader == "" {
		c.authHeader = defaultAuthHeader
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

// ToolDefinition describes a webhook tool the engine calls during a
// conversation.
type ToolDefinition struct {
	Name        string            `json:"name" validate:"required,max=64"`
	Description string            `json:"description"`
	URL         string            `json:"url" validate:"required,url"`
	Method      string            `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     map[string]any    `json:"payload,omitempty"`
}

func (d ToolDefinition) wire() map[string]any {
	method := strings.ToUpper(d.Method)
	if method == "" {
		method = http.MethodPost
	}
	schema := map[string]any{"url": d.URL, "method": method}
	if len(d.Headers) > 0 {
		schema["request_headers"] = d.Headers
	}
	if len(d.Payload) > 0 {
		schema["request_body"] = d.Payload
	}
	return map[string]any{
		"tool_config": map[string]any{
			"type":        "webhook",
			"name":        d.Name,
			"description": d.Description,
			"api_schema":  schema,
		},
	}
}

// AgentRequest is the payload for creating or updating an agent.
type AgentRequest struct {
	Name         string
	FirstMessage string
	Prompt       string
	ToolIDs      []string
	Workflow     *workflow.Graph
}

func (r AgentRequest) wire() map[string]any {
	toolIDs := r.ToolIDs
	if toolIDs == nil {
		toolIDs = []string{}
	}
	agent := map[string]any{
		"prompt": map[string]any{"prompt": r.Prompt, "tool_ids": toolIDs},
	}
	if r.FirstMessage != "" {
		agent["first_message"] = r.FirstMessage
	}
	out := map[string]any{
		"conversation_config": map[string]any{"agent": agent},
	}
	if r.Name != "" {
		out["name"] = r.Name
	}
	if r.Workflow != nil {
		out["workflow"] = r.Workflow
	}
	return out
}

type toolList struct {
	Tools []struct {
		ID         string `json:"id"`
		ToolConfig struct {
			Name      string `json:"name"`
			APISchema struct {
				URL string `json:"url"`
			} `json:"api_schema"`
		} `json:"tool_config"`
	} `json:"tools"`
}

// FindTool looks up an existing tool by name and URL. found is false when no
// tool matches both.
func (c *Client) FindTool(ctx context.Context, name, toolURL string) (id string, found bool, err error) {
	var list toolList
	if err := c.do(ctx, http.MethodGet, "/v1/convai/tools", nil, &list); err != nil {
		return "", false, fmt.Errorf("find tool %q: %w", name, err)
	}
	for _, t := range list.Tools {
		if t.ToolConfig.Name == name && t.ToolConfig.APISchema.URL == toolURL {
			return t.ID, true, nil
		}
	}
	return "", false, nil
}

// RegisterTool creates a tool and returns the engine's handle for it.
func (c *Client) RegisterTool(ctx context.Context, def ToolDefinition) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/convai/tools", def.wire(), &out); err != nil {
		return "", fmt.Errorf("register tool %q: %w", def.Name, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("register tool %q: response has no id", def.Name)
	}
	return out.ID, nil
}

// CreateAgent creates an agent and returns its id.
func (c *Client) CreateAgent(ctx context.Context, req AgentRequest) (string, error) {
	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/convai/agents/create", req.wire(), &out); err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}
	if out.AgentID == "" {
		return "", errors.New("create agent: response has no agent_id")
	}
	return out.AgentID, nil
}

// UpdateAgent replaces the agent's configuration.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, req AgentRequest) error {
	if agentID == "" {
		return errors.New("update agent: agent id is required")
	}
	path := "/v1/convai/agents/" + url.PathEscape(agentID)
	if err := c.do(ctx, http.MethodPatch, path, req.wire(), nil); err != nil {
		return fmt.Errorf("update agent %q: %w", agentID, err)
	}
	return nil
}

// do sends one JSON request with retries on transient failures and decodes
// the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	endpoint := c.base.String() + path

	return retry(ctx, c.maxAttempts, c.backoff, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set(c.authHeader, c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		c.log.Debug("engine request", "method", method, "path", path, "status", resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			text := strings.TrimSpace(string(msg))
			if text == "" {
				text = http.StatusText(resp.StatusCode)
			}
			apiErr := statusError(resp.StatusCode, text)
			if Retryable(apiErr) {
				c.log.Warn("engine request failed", "method", method, "path", path, "status", resp.StatusCode, "retryable", true)
			}
			return apiErr
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}
