package notify

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
)

const (
	TemplateRegistrationOpen = "registration_open"
	TemplateOpenTimeFound    = "open_time_found"
	TemplateBarrierAssist    = "barrier_assist"
	TemplateReminder         = "gentle_reminder"
	TemplateEscalation       = "escalation"
)

var ErrUnknownTemplate = errors.New("unknown notification template")

// Content is a rendered notification, channel agnostic.
type Content struct {
	Subject string
	Body    string
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(id, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(id + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(id + ".body").Option("missingkey=zero").Parse(body)),
	}
}

var templates = map[string]messageTemplate{
	TemplateRegistrationOpen: mustTemplate(TemplateRegistrationOpen,
		`Registration is open: {{.provider}}`,
		`Registration just opened at {{.provider}}.{{if .url}} {{.url}}{{end}} We are starting signup for {{if .children}}{{.children}}{{else}}your children{{end}} now. Reply DONE when you have seen this.`),
	TemplateOpenTimeFound: mustTemplate(TemplateOpenTimeFound,
		`Opening time announced: {{.provider}}`,
		`{{.provider}} announced registration opens {{.opens_at}}. We will watch closely around then.`),
	TemplateBarrierAssist: mustTemplate(TemplateBarrierAssist,
		`Your help is needed: {{.barrier}}`,
		`Signup at {{.provider}} is waiting on a {{.barrier}} step only you can complete.{{if .assist_url}} Open {{.assist_url}} to finish it.{{end}} Reply DONE when finished.`),
	TemplateReminder: mustTemplate(TemplateReminder,
		`Reminder: {{.subject}}`,
		`Just checking in on our last message. {{.body}}`),
	TemplateEscalation: mustTemplate(TemplateEscalation,
		`Urgent: {{.subject}}`,
		`We could not reach you on {{.channel}}. {{.body}}`),
}

func Render(templateID string, data map[string]any) (Content, error) {
	t, ok := templates[templateID]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	var subj, body bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return Content{}, err
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Content{}, err
	}
	return Content{Subject: subj.String(), Body: body.String()}, nil
}
