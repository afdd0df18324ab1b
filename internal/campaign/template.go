package campaign

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"azubi-engine/internal/domain"
)

// templateData is what subject and body templates see: every Job field plus
// the address the message goes to.
type templateData struct {
	domain.Job
	Email string
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

func parseTemplates(subject, body string) (*messageTemplate, error) {
	s, err := template.New("subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("subject template: %w", err)
	}
	b, err := template.New("body").Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("body template: %w", err)
	}
	mt := &messageTemplate{subject: s, body: b}
	// catch references to fields that do not exist before anything is sent
	if _, _, err := mt.render(domain.Job{Title: "x", Institution: "x"}, "x@example.org"); err != nil {
		return nil, err
	}
	return mt, nil
}

func (mt *messageTemplate) render(j domain.Job, email string) (subject, body string, err error) {
	data := templateData{Job: j, Email: email}
	var sb, bb bytes.Buffer
	if err := mt.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := mt.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	// header injection guard
	subject = strings.Join(strings.Fields(sb.String()), " ")
	return subject, bb.String(), nil
}
