// Package provision creates and updates voice agents from compiled flows.
//
// Provisioning is two-phase. Phase 1 links the tools that need no agent
// identity and creates the agent. Phase 2 registers the tools whose callback
// URL embeds the new agent id, rewrites the workflow to reference them and
// updates the agent.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/ravi-parthasarathy/flowc/pkg/compiler"
	"github.com/ravi-parthasarathy/flowc/pkg/engineapi"
	"github.com/ravi-parthasarathy/flowc/pkg/linker"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

// ErrInvalidWorkflow is returned when a workflow with validation errors is
// provisioned without Force.
var ErrInvalidWorkflow = errors.New("provision: workflow is invalid")

// ValidationError carries the validator's messages.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v:\n  %s", ErrInvalidWorkflow, strings.Join(e.Errors, "\n  "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidWorkflow }

// AgentAPI creates and updates agents on the voice engine.
type AgentAPI interface {
	CreateAgent(ctx context.Context, req engineapi.AgentRequest) (string, error)
	UpdateAgent(ctx context.Context, agentID string, req engineapi.AgentRequest) error
}

// ToolLinker links tool definitions and rewrites workflow references.
type ToolLinker interface {
	RegisterAndRewrite(ctx context.Context, tools []engineapi.ToolDefinition, wf *workflow.Graph) map[string]string
}

// AgentSpec is what gets provisioned.
type AgentSpec struct {
	Name   string
	Prompt string
	Result *compiler.Result
	// Force provisions even when the workflow failed validation.
	Force bool
}

// Provisioner runs the two provisioning phases.
type Provisioner struct {
	agents      AgentAPI
	linker      ToolLinker
	platformURL string
	log         *slog.Logger
}

// New returns a Provisioner. platformURL is the base of the callback URLs
// Phase-2 tools point at.
func New(agents AgentAPI, l ToolLinker, platformURL string, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{
		agents:      agents,
		linker:      l,
		platformURL: strings.TrimRight(platformURL, "/"),
		log:         log,
	}
}

// Provision runs Phase1 then Phase2. When Phase2 fails the agent already
// exists, so its id is returned alongside the error.
func (p *Provisioner) Provision(ctx context.Context, spec AgentSpec) (string, error) {
	agentID, err := p.Phase1(ctx, spec)
	if err != nil {
		return "", err
	}
	if err := p.Phase2(ctx, agentID, spec); err != nil {
		return agentID, err
	}
	return agentID, nil
}

// Phase1 links creation-phase tools and creates the agent.
func (p *Provisioner) Phase1(ctx context.Context, spec AgentSpec) (string, error) {
	if err := p.check(spec); err != nil {
		return "", err
	}
	res := spec.Result

	handles := p.linker.RegisterAndRewrite(ctx, linker.WebhookTools(res.Features), res.Workflow)
	agentID, err := p.agents.CreateAgent(ctx, p.request(spec, handles))
	if err != nil {
		return "", fmt.Errorf("phase 1: %w", err)
	}
	p.log.Info("agent created", "agent", agentID, "name", spec.Name, "tools", len(handles))
	return agentID, nil
}

// Phase2 links the tools whose URL embeds agentID and updates the agent.
// It is a no-op when the flow has no such tools.
func (p *Provisioner) Phase2(ctx context.Context, agentID string, spec AgentSpec) error {
	if err := p.check(spec); err != nil {
		return err
	}
	if agentID == "" {
		return errors.New("phase 2: agent id is required")
	}
	res := spec.Result

	linked, err := p.linkedTools(agentID, res.Features)
	if err != nil {
		return fmt.Errorf("phase 2: %w", err)
	}
	if len(linked) == 0 {
		p.log.Debug("no phase 2 tools", "agent", agentID)
		return nil
	}

	// Creation-phase tools are cached by now; relinking them only recovers
	// their handles for the agent's tool list.
	tools := append(linker.WebhookTools(res.Features), linked...)
	handles := p.linker.RegisterAndRewrite(ctx, tools, res.Workflow)
	if err := p.agents.UpdateAgent(ctx, agentID, p.request(spec, handles)); err != nil {
		return fmt.Errorf("phase 2: %w", err)
	}
	p.log.Info("agent updated", "agent", agentID, "tools", len(handles))
	return nil
}

func (p *Provisioner) check(spec AgentSpec) error {
	if spec.Result == nil || spec.Result.Workflow == nil {
		return errors.New("provision: no compiled workflow")
	}
	if !spec.Result.Validation.Valid && !spec.Force {
		return &ValidationError{Errors: spec.Result.Validation.Errors}
	}
	return nil
}

func (p *Provisioner) request(spec AgentSpec, handles map[string]string) engineapi.AgentRequest {
	ids := make([]string, 0, len(handles))
	seen := make(map[string]bool, len(handles))
	for _, h := range handles {
		if !seen[h] {
			seen[h] = true
			ids = append(ids, h)
		}
	}
	sort.Strings(ids)
	return engineapi.AgentRequest{
		Name:         spec.Name,
		FirstMessage: spec.Result.FirstMessage,
		Prompt:       spec.Prompt,
		ToolIDs:      ids,
		Workflow:     spec.Result.Workflow,
	}
}

// linkedTools builds the Phase-2 definitions: scheduling, form and audio
// tools calling back into the platform under the agent's id.
func (p *Provisioner) linkedTools(agentID string, f compiler.Features) ([]engineapi.ToolDefinition, error) {
	var out []engineapi.ToolDefinition
	seen := make(map[string]bool)
	add := func(def engineapi.ToolDefinition) {
		if seen[def.Name] {
			return
		}
		seen[def.Name] = true
		out = append(out, def)
	}

	if !f.HasScheduling && !f.HasForms && !f.HasAudio {
		return nil, nil
	}
	if p.platformURL == "" {
		return nil, errors.New("platform URL is required for scheduling, form and audio tools")
	}

	for _, s := range f.Scheduling {
		payload := map[string]any{"fields": s.Fields}
		if s.CalendarID != "" {
			payload["calendar_id"] = s.CalendarID
		}
		if s.DurationMinutes > 0 {
			payload["duration_minutes"] = s.DurationMinutes
		}
		if s.Timezone != "" {
			payload["timezone"] = s.Timezone
		}
		add(engineapi.ToolDefinition{
			Name:        s.ToolName,
			Description: "Book an appointment once the caller's name, date and time are known.",
			URL:         p.callbackURL(agentID, "scheduling"),
			Method:      "POST",
			Payload:     payload,
		})
	}
	for _, fm := range f.Forms {
		names := make([]string, 0, len(fm.Fields))
		for _, field := range fm.Fields {
			names = append(names, field.Name)
		}
		add(engineapi.ToolDefinition{
			Name:        fm.ToolName,
			Description: "Submit the answers collected for form " + fm.FormID + ".",
			URL:         p.callbackURL(agentID, "forms"),
			Method:      "POST",
			Payload:     map[string]any{"form_id": fm.FormID, "fields": names},
		})
	}
	for _, a := range f.Audio {
		add(engineapi.ToolDefinition{
			Name:        a.ToolName,
			Description: "Play a pre-recorded message.",
			URL:         p.callbackURL(agentID, "audio"),
			Method:      "POST",
			Payload:     map[string]any{"node_id": a.NodeID, "audio_url": a.AudioURL},
		})
	}
	return out, nil
}

func (p *Provisioner) callbackURL(agentID, category string) string {
	return p.platformURL + "/agents/" + url.PathEscape(agentID) + "/" + category
}
