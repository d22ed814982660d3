package compiler

import (
	"bytes"
	"strings"
	"text/template"
)

// The engine is an LLM and tends to embellish; these directives are part of
// the compiled payload and must stay explicit about verbatim delivery.
var (
	verbatimTpl = mustTemplate("verbatim", `Say the following message to the user exactly as written, word for word and character for character:

"{{.Text}}"

Do not paraphrase, summarize, translate, reorder or embellish it. Do not add greetings, filler or follow-up questions before or after it. After saying it, wait for the user to respond.`)

	entryTpl = mustTemplate("entry", `The opening message "{{.Text}}" has already been delivered to the user. Do not repeat it. Wait for the user's reply and continue the conversation from there.`)

	emptyMessageTpl = mustTemplate("empty_message", `This step has no scripted message. Do not invent one. Wait for the user to speak and continue the conversation from there.`)

	questionTpl = mustTemplate("question", `Ask the user the following question exactly as written, word for word:

"{{.Text}}"

Do not paraphrase the question or add anything to it. Remember the user's answer as the variable "{{.Variable}}".`)

	audioTpl = mustTemplate("audio", `Play the pre-recorded message for this step by calling the "{{.ToolName}}" tool. Do not speak over the recording.{{if .Text}} If the tool fails, say the following message exactly as written, word for word, without paraphrasing or embellishing it:

"{{.Text}}"{{end}}`)

	delayTpl = mustTemplate("delay", `Say "{{.Text}}" to the user and then pause{{if .Seconds}} for about {{.Seconds}} seconds{{end}} before continuing. Do not say anything else while waiting.`)

	appointmentTpl = mustTemplate("appointment", `Help the user book an appointment{{if .Label}} ({{.Label}}){{end}}.

Collect the following details, one at a time:
{{range .Fields}}- {{.}}
{{end -}}
{{if .Timezone}}All times are in the {{.Timezone}} timezone.
{{end -}}
{{if .Duration}}Each appointment lasts {{.Duration}} minutes.
{{end -}}
{{if .CalendarID}}Book into calendar "{{.CalendarID}}".
{{end}}
Confirm the details back to the user. As soon as you know the date, the time and the user's name, call the "{{.ToolName}}" tool to book the appointment. Tell the user whether the booking succeeded and never claim a booking that the tool did not confirm.`)

	formTpl = mustTemplate("form", `Collect the following information from the user for the "{{.FormName}}" form, one item at a time:
{{range .FormFields}}- {{.Label}}{{if .Required}} (required){{end}}
{{end}}
Repeat each answer back for confirmation before moving on. When every required item is collected, call the "{{.ToolName}}" tool with the answers.`)

	genericFormTpl = mustTemplate("generic_form", `Collect the information the user needs to provide{{if .FormName}} for "{{.FormName}}"{{end}}. Ask one question at a time and confirm each answer. When you have everything, call the "{{.ToolName}}" tool with the answers.`)
)

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// renderPrompt executes a prompt template against data.
func renderPrompt(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
