package compiler

import (
	"strings"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/forms"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

// Phase says when a tool can be provisioned. Creation-phase tools need no
// agent identity; linked-phase tools embed the agent id in their URL and can
// only be registered once the agent exists.
type Phase int

const (
	PhaseCreation Phase = 1
	PhaseLinked   Phase = 2
)

func (p Phase) String() string {
	switch p {
	case PhaseCreation:
		return "creation"
	case PhaseLinked:
		return "linked"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// SchedulingNode describes an appointment step.
type SchedulingNode struct {
	NodeID          string   `json:"nodeId"`
	ToolName        string   `json:"toolName"`
	Label           string   `json:"label,omitempty"`
	Fields          []string `json:"fields"`
	CalendarID      string   `json:"calendarId,omitempty"`
	DurationMinutes float64  `json:"durationMinutes,omitempty"`
	Timezone        string   `json:"timezone,omitempty"`
	Phase           Phase    `json:"phase"`
}

// FormNode describes a data-collection step with its looked-up fields.
type FormNode struct {
	NodeID   string        `json:"nodeId"`
	FormID   string        `json:"formId"`
	FormName string        `json:"formName,omitempty"`
	ToolName string        `json:"toolName"`
	Fields   []forms.Field `json:"fields"`
	Phase    Phase         `json:"phase"`
}

// WebhookNode describes a custom webhook tool configured by the author.
type WebhookNode struct {
	NodeID      string            `json:"nodeId"`
	ToolName    string            `json:"toolName"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     map[string]any    `json:"payload,omitempty"`
	Phase       Phase             `json:"phase"`
}

// AudioNode describes a message played from a pre-recorded file.
type AudioNode struct {
	NodeID   string `json:"nodeId"`
	ToolName string `json:"toolName"`
	AudioURL string `json:"audioUrl"`
	Phase    Phase  `json:"phase"`
}

// Features is the feature analyzer's report.
type Features struct {
	HasScheduling bool             `json:"hasScheduling"`
	HasForms      bool             `json:"hasForms"`
	HasWebhooks   bool             `json:"hasWebhooks"`
	HasAudio      bool             `json:"hasAudio"`
	Scheduling    []SchedulingNode `json:"scheduling,omitempty"`
	Forms         []FormNode       `json:"forms,omitempty"`
	Webhooks      []WebhookNode    `json:"webhooks,omitempty"`
	Audio         []AudioNode      `json:"audio,omitempty"`
}

// analyze scans the flow for nodes that need tool provisioning. It reads but
// never mutates wf; only nodes that made it into wf are reported.
func (c *compilation) analyze(wf *workflow.Graph) Features {
	var f Features
	for i := range c.graph.Nodes {
		n := &c.graph.Nodes[i]
		if c.index[n.ID] != n || n.ID == workflow.StartNodeID {
			continue
		}
		if _, ok := wf.Nodes[n.ID]; !ok {
			continue
		}

		switch n.Kind() {
		case flow.KindAppointment:
			cfg := decode[flow.AppointmentConfig](c, n)
			f.Scheduling = append(f.Scheduling, SchedulingNode{
				NodeID:          n.ID,
				ToolName:        schedulingToolName(cfg),
				Label:           cfg.Label,
				Fields:          appointmentFields(cfg),
				CalendarID:      cfg.CalendarID,
				DurationMinutes: float64(cfg.DurationMinutes),
				Timezone:        cfg.Timezone,
				Phase:           PhaseLinked,
			})

		case flow.KindForm:
			cfg := decode[flow.FormConfig](c, n)
			entry := FormNode{
				NodeID:   n.ID,
				FormID:   cfg.FormID,
				ToolName: formToolName(n, cfg),
				Phase:    PhaseLinked,
			}
			if form, ok := c.forms.LookupForm(cfg.FormID); ok && cfg.FormID != "" {
				entry.FormName = form.Name
				entry.Fields = form.Fields
			}
			f.Forms = append(f.Forms, entry)

		case flow.KindWebhook:
			cfg := decode[flow.WebhookConfig](c, n)
			method := strings.ToUpper(strings.TrimSpace(cfg.Method))
			if method == "" {
				method = "POST"
			}
			f.Webhooks = append(f.Webhooks, WebhookNode{
				NodeID:      n.ID,
				ToolName:    webhookToolName(n, cfg),
				Description: cfg.Description,
				URL:         cfg.URL,
				Method:      method,
				Headers:     cfg.Headers,
				Payload:     cfg.Payload,
				Phase:       PhaseCreation,
			})

		case flow.KindMessage:
			cfg := decode[flow.MessageConfig](c, n)
			if cfg.AudioURL == "" || n.ID == c.softID {
				continue
			}
			f.Audio = append(f.Audio, AudioNode{
				NodeID:   n.ID,
				ToolName: audioToolName(n),
				AudioURL: cfg.AudioURL,
				Phase:    PhaseLinked,
			})
		}
	}

	f.HasScheduling = len(f.Scheduling) > 0
	f.HasForms = len(f.Forms) > 0
	f.HasWebhooks = len(f.Webhooks) > 0
	f.HasAudio = len(f.Audio) > 0
	return f
}
