package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Template names understood by the email worker.
const (
	TemplateReactivation  = "reactivation"
	TemplateSuspension    = "suspension"
	TemplateExpiryWarning = "expiry_warning"
)

// Message is a templated email destined for a company's administrators.
type Message struct {
	Template  string         `json:"template"`
	CompanyID string         `json:"companyId"`
	To        string         `json:"to"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
}

// Dispatcher hands a message to the delivery channel. Delivery is
// asynchronous; a nil error means the message was accepted, not delivered.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type tmpl struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]tmpl{
	TemplateReactivation: {
		subject: template.Must(template.New("subject").Parse(`Your {{.CompanyName}} account is active`)),
		body: template.Must(template.New("body").Parse(
			`Your {{.Plan}} subscription is active until {{.EndDate}}. Agents can sign in again.`)),
	},
	TemplateSuspension: {
		subject: template.Must(template.New("subject").Parse(`Your {{.CompanyName}} account has been suspended`)),
		body: template.Must(template.New("body").Parse(
			`Access for {{.CompanyName}} was suspended: {{.Reason}}. All active sessions were signed out.`)),
	},
	TemplateExpiryWarning: {
		subject: template.Must(template.New("subject").Parse(
			`Your subscription expires in {{.DaysLeft}} day{{if ne .DaysLeft 1}}s{{end}}`)),
		body: template.Must(template.New("body").Parse(
			`The {{.Plan}} subscription for {{.CompanyName}} ends on {{.EndDate}}. Renew before then to keep collecting.`)),
	},
}

// Render builds a Message from one of the named templates.
func Render(name, companyID, to string, data map[string]any) (Message, error) {
	t, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification template %q", name)
	}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", name, err)
	}

	return Message{
		Template:  name,
		CompanyID: companyID,
		To:        to,
		Subject:   subject.String(),
		Body:      body.String(),
		Data:      data,
	}, nil
}
