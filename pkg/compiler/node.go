package compiler

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/forms"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

const (
	defaultQuestionVariable = "response"
	defaultDelayFiller      = "One moment please."
	defaultSchedulingTool   = "book_appointment"
)

var defaultAppointmentFields = []string{"name", "date", "time"}

// compileNode maps one flow node to its compiled variant. Start, trigger and
// condition nodes are elided (nil). Unknown kinds fall back to a generic
// instruction so compilation never fails on an unrecognised node.
func (c *compilation) compileNode(n *flow.Node) workflow.Node {
	h := workflow.Header{Position: n.Position}

	switch n.Kind() {
	case flow.KindStart, flow.KindTrigger, flow.KindCondition:
		return nil

	case flow.KindMessage:
		cfg := decode[flow.MessageConfig](c, n)
		speech := &workflow.ScriptedSpeech{
			Header: h,
			Label:  labelOr(cfg.Label, "Message"),
			Text:   cfg.Message,
		}
		switch {
		case n.ID == c.softID:
			speech.Prompt = c.render(n, entryTpl, promptData{Text: cfg.Message})
		case cfg.AudioURL != "":
			tool := audioToolName(n)
			speech.ToolIDs = []string{tool}
			speech.Prompt = c.render(n, audioTpl, promptData{Text: cfg.Message, ToolName: tool})
		case strings.TrimSpace(cfg.Message) == "":
			c.warnf("node %q: message has no text", n.ID)
			speech.Prompt = c.render(n, emptyMessageTpl, promptData{})
		default:
			speech.Prompt = c.render(n, verbatimTpl, promptData{Text: cfg.Message})
		}
		return speech

	case flow.KindQuestion:
		cfg := decode[flow.QuestionConfig](c, n)
		variable := strings.TrimSpace(cfg.Variable)
		if variable == "" {
			variable = defaultQuestionVariable
		}
		return &workflow.ScriptedSpeech{
			Header:          h,
			Label:           labelOr(cfg.Label, "Question"),
			Text:            cfg.Question,
			CaptureVariable: variable,
			Prompt:          c.render(n, questionTpl, promptData{Text: cfg.Question, Variable: variable}),
		}

	case flow.KindTransfer:
		cfg := decode[flow.TransferConfig](c, n)
		style := workflow.TransferConference
		switch strings.ToLower(strings.TrimSpace(cfg.TransferType)) {
		case "", string(workflow.TransferConference):
		case string(workflow.TransferBlind):
			style = workflow.TransferBlind
		default:
			c.warnf("node %q: unknown transfer type %q, using conference", n.ID, cfg.TransferType)
		}
		return &workflow.Transfer{
			Header:      h,
			Label:       labelOr(cfg.Label, "Transfer"),
			PhoneNumber: cfg.PhoneNumber,
			Style:       style,
		}

	case flow.KindEnd:
		return &workflow.Terminal{Header: h}

	case flow.KindDelay:
		cfg := decode[flow.DelayConfig](c, n)
		filler := cfg.Message
		if filler == "" {
			filler = defaultDelayFiller
		}
		data := promptData{Text: filler}
		if cfg.Seconds > 0 {
			data.Seconds = strconv.FormatFloat(float64(cfg.Seconds), 'f', -1, 64)
		}
		return &workflow.ScriptedSpeech{
			Header: h,
			Label:  "Delay",
			Text:   filler,
			Prompt: c.render(n, delayTpl, data),
		}

	case flow.KindAppointment:
		cfg := decode[flow.AppointmentConfig](c, n)
		tool := schedulingToolName(cfg)
		data := promptData{
			Label:      cfg.Label,
			ToolName:   tool,
			Fields:     appointmentFields(cfg),
			Timezone:   cfg.Timezone,
			CalendarID: cfg.CalendarID,
		}
		if cfg.DurationMinutes > 0 {
			data.Duration = strconv.FormatFloat(float64(cfg.DurationMinutes), 'f', -1, 64)
		}
		return &workflow.ScriptedSpeech{
			Header:  h,
			Label:   labelOr(cfg.Label, "Book appointment"),
			ToolIDs: []string{tool},
			Prompt:  c.render(n, appointmentTpl, data),
		}

	case flow.KindForm:
		cfg := decode[flow.FormConfig](c, n)
		tool := formToolName(n, cfg)
		form, found := c.lookupForm(n, cfg)
		speech := &workflow.ScriptedSpeech{
			Header:  h,
			Label:   labelOr(cfg.Label, labelOr(form.Name, "Form")),
			ToolIDs: []string{tool},
		}
		if found && len(form.Fields) > 0 {
			speech.Prompt = c.render(n, formTpl, promptData{
				FormName:   labelOr(form.Name, cfg.FormID),
				ToolName:   tool,
				FormFields: formFields(form.Fields),
			})
		} else {
			speech.Prompt = c.render(n, genericFormTpl, promptData{FormName: form.Name, ToolName: tool})
		}
		return speech

	case flow.KindWebhook:
		cfg := decode[flow.WebhookConfig](c, n)
		return &workflow.ToolInvocation{Header: h, ToolID: webhookToolName(n, cfg)}

	case flow.KindUnknown:
		fallthrough
	default:
		cfg := decode[flow.GenericConfig](c, n)
		prompt := cfg.Message
		if prompt == "" {
			prompt = cfg.Label
		}
		return &workflow.GenericInstruction{
			Header: h,
			Label:  labelOr(cfg.Label, n.TypeTag()),
			Prompt: prompt,
		}
	}
}

// promptData is the union of fields the prompt templates read.
type promptData struct {
	Text       string
	Variable   string
	Seconds    string
	Label      string
	ToolName   string
	Fields     []string
	Timezone   string
	Duration   string
	CalendarID string
	FormName   string
	FormFields []promptField
}

type promptField struct {
	Label    string
	Required bool
}

func (c *compilation) render(n *flow.Node, tpl *template.Template, data promptData) string {
	out, err := renderPrompt(tpl, data)
	if err != nil {
		c.warnf("node %q: render %s prompt: %v", n.ID, tpl.Name(), err)
		return data.Text
	}
	return out
}

func (c *compilation) lookupForm(n *flow.Node, cfg flow.FormConfig) (forms.Form, bool) {
	if cfg.FormID == "" {
		c.warnf("node %q: form node has no formId", n.ID)
		return forms.Form{}, false
	}
	f, ok := c.forms.LookupForm(cfg.FormID)
	if !ok {
		c.warnf("node %q: form %q not found", n.ID, cfg.FormID)
	}
	return f, ok
}

func formFields(fields []forms.Field) []promptField {
	out := make([]promptField, 0, len(fields))
	for _, f := range fields {
		out = append(out, promptField{Label: labelOr(f.Label, f.Name), Required: f.Required})
	}
	return out
}

func appointmentFields(cfg flow.AppointmentConfig) []string {
	var fields []string
	for _, f := range cfg.Fields {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return defaultAppointmentFields
	}
	return fields
}

func schedulingToolName(cfg flow.AppointmentConfig) string {
	if name := strings.TrimSpace(cfg.ToolName); name != "" {
		return name
	}
	return defaultSchedulingTool
}

func webhookToolName(n *flow.Node, cfg flow.WebhookConfig) string {
	if name := strings.TrimSpace(cfg.Name); name != "" {
		return name
	}
	return "webhook_" + n.ID
}

func formToolName(n *flow.Node, cfg flow.FormConfig) string {
	if cfg.FormID != "" {
		return "submit_form_" + cfg.FormID
	}
	return "submit_form_" + n.ID
}

func audioToolName(n *flow.Node) string {
	return "play_audio_" + n.ID
}

func labelOr(label, fallback string) string {
	if s := strings.TrimSpace(label); s != "" {
		return s
	}
	return fallback
}
