package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
)

// Template names.
const (
	TplCoordinatorNewRequest = "coordinator_new_request"
	TplRequesterConfirmation = "requester_confirmation"
	TplStatusInProgress      = "status_in_progress"
	TplStatusDeclined        = "status_declined"
	TplStatusCompleted       = "status_completed"
)

// Data fills a template.
type Data struct {
	Request       entity.Request
	RecipientName string
	Message       string
	AppURL        string
	ContactEmail  string
	SystemName    string
}

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"join":     entity.JoinList,
	"date":     entity.FormatDate,
	"fallback": orDefault,
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func mustTemplate(name, subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New(name + "_subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New(name).Funcs(funcs).Parse(strings.TrimLeft(body, "\n"))),
	}
}

const requestSummary = `Project/Grant: {{.Request.ProjectGrant}}
Request Type: {{.Request.RequestType}}
Type of Support Needed: {{join .Request.SupportTypes}}
Primary Purpose: {{join .Request.PrimaryPurposes}}
Target Audience: {{join .Request.TargetAudiences}}
Requested Due Date: {{date .Request.RequestedDueDate}}
Priority Level: {{.Request.PriorityLevel}}
Key Points: {{.Request.KeyPoints}}
Share Externally: {{.Request.ShareExternally}}
Estimated Length/Size: {{.Request.EstimatedLength}}
Where it will live: {{join .Request.LiveLocations}}
`

var templates = map[string]mailTemplate{
	TplCoordinatorNewRequest: mustTemplate(TplCoordinatorNewRequest,
		`New Communications Request Submitted: {{.Request.TicketID}}`, `
Hi {{fallback .RecipientName "Coordinator"}},

A new communications request has been submitted in the {{.SystemName}}.

Ticket ID: {{.Request.TicketID}}
Requestor Name: {{.Request.Name}}
Requestor Email: {{.Request.Email}}
`+requestSummary+`Attachments: {{fallback (join .Request.BackgroundLinks) "None"}}
Drafts: {{fallback (join .Request.DraftLinks) "None"}}
Request PDF: {{fallback .Request.SummaryLink "Not available"}}

Please log into the {{.SystemName}}{{if .AppURL}} ({{.AppURL}}){{end}} to review and manage this request.

Best,
{{.SystemName}}
`),

	TplRequesterConfirmation: mustTemplate(TplRequesterConfirmation,
		`Your Communications Request ({{.Request.TicketID}}) has been received`, `
Hi {{fallback .RecipientName "there"}},

Thank you for submitting your communications request.

Here is a summary of your submission:
Ticket ID: {{.Request.TicketID}}
`+requestSummary+`
You can view a PDF summary of your request here: {{fallback .Request.SummaryLink "Not available at this time"}}.

A coordinator will review your request and follow up within 1-2 business days to confirm scope and timeline.
{{- if .ContactEmail}}
If you have any questions, please contact {{.ContactEmail}}.
{{- end}}

Best,
{{.SystemName}}
`),

	TplStatusInProgress: mustTemplate(TplStatusInProgress,
		`Your Communications Request ({{.Request.TicketID}}) is now In Progress`, `
Hi {{fallback .RecipientName "there"}},

Your communications request ({{.Request.TicketID}}) has been reviewed and is now In Progress.

Message from coordinator:
{{.Message}}

Best,
{{.SystemName}}
`),

	TplStatusDeclined: mustTemplate(TplStatusDeclined,
		`Your Communications Request ({{.Request.TicketID}}) has been Declined`, `
Hi {{fallback .RecipientName "there"}},

Your communications request ({{.Request.TicketID}}) has been reviewed and declined.

Message from coordinator:
{{.Message}}
{{if .ContactEmail}}
If you have questions, please contact {{.ContactEmail}}.
{{end}}
Best,
{{.SystemName}}
`),

	TplStatusCompleted: mustTemplate(TplStatusCompleted,
		`Your Communications Request ({{.Request.TicketID}}) has been Completed`, `
Hi {{fallback .RecipientName "there"}},

Your communications request ({{.Request.TicketID}}) has been marked as Completed.

Message from coordinator:
{{.Message}}

Output files (if any): {{fallback (join .Request.OutputLinks) "None"}}

Best,
{{.SystemName}}
`),
}

// StatusTemplate returns the requester notification for a new status, or
// false when the status sends none.
func StatusTemplate(status string) (string, bool) {
	switch status {
	case entity.StatusInProgress:
		return TplStatusInProgress, true
	case entity.StatusDeclined:
		return TplStatusDeclined, true
	case entity.StatusCompleted:
		return TplStatusCompleted, true
	}
	return "", false
}

// Render resolves a template to its subject and body.
func Render(name string, data Data) (subject, body string, err error) {
	t, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", name)
	}
	var sb, bb bytes.Buffer
	if err := t.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject %s: %w", name, err)
	}
	if err := t.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render body %s: %w", name, err)
	}
	return sb.String(), bb.String(), nil
}
