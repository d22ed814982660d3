package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is a numeric config value that also accepts numeric strings, since
// editor forms and DOT attributes frequently deliver numbers as text.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = Number(f)
	return nil
}

// MessageConfig configures a message node.
type MessageConfig struct {
	Label    string `json:"label"`
	Message  string `json:"message"`
	AudioURL string `json:"audioUrl"`
}

// QuestionConfig configures a question node. Variable names the slot the
// answer is remembered under.
type QuestionConfig struct {
	Label    string `json:"label"`
	Question string `json:"question"`
	Variable string `json:"variable"`
}

// TransferConfig configures a call transfer.
type TransferConfig struct {
	Label        string `json:"label"`
	PhoneNumber  string `json:"phoneNumber"`
	TransferType string `json:"transferType"`
}

// DelayConfig configures a pause with a filler utterance.
type DelayConfig struct {
	Seconds Number `json:"seconds"`
	Message string `json:"message"`
}

// AppointmentConfig configures a scheduling step.
type AppointmentConfig struct {
	Label           string   `json:"label"`
	ToolName        string   `json:"toolName"`
	Fields          []string `json:"fields"`
	CalendarID      string   `json:"calendarId"`
	DurationMinutes Number   `json:"durationMinutes"`
	Timezone        string   `json:"timezone"`
}

// FormConfig configures a data-collection step backed by a stored form.
type FormConfig struct {
	Label  string `json:"label"`
	FormID string `json:"formId"`
}

// WebhookConfig configures a custom HTTP callback tool.
type WebhookConfig struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Payload     map[string]any    `json:"payload"`
}

// BranchRule maps one outgoing branch of a condition node to a rule. A rule
// applies to an edge when Target equals the edge target, or when Handle (or
// ID) equals the edge's source handle.
type BranchRule struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	Target string `json:"target"`
	Handle string `json:"handle"`
}

// ConditionConfig configures a branching node.
type ConditionConfig struct {
	Rules []BranchRule `json:"rules"`
}

// GenericConfig is what the compiler reads from nodes of unknown kind.
type GenericConfig struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// DecodeConfig decodes the node's open config map into a typed configuration.
// On failure the zero value is returned alongside the error so that callers
// can keep going with defaults.
func DecodeConfig[T any](n *Node) (T, error) {
	var out T
	if len(n.Config) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(n.Config)
	if err != nil {
		return out, fmt.Errorf("node %q: encode config: %w", n.ID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("node %q: decode %s config: %w", n.ID, n.Kind(), err)
	}
	return out, nil
}
