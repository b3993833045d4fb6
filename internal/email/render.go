package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/DukeRupert/folio/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(
	template.New("email").Funcs(emailTemplateFuncs()).ParseFS(templateFS, "templates/*.html"),
)

// contactData is the view model for templates/contact.html.
type contactData struct {
	Subject      string
	Name         string
	Email        string
	Kind         string
	Organization string
	Position     string
	Phone        string
	Message      string
	Attachment   string
	ReceivedAt   string
}

// NewContactMessage renders a contact submission into a Message addressed
// from -> to with reply-to set to the submitter. The attachment, if any,
// is attached by the caller because its content lives in upload storage.
func NewContactMessage(sub *domain.ContactSubmission, from, to string, now time.Time) (*Message, error) {
	data := contactData{
		Subject:      sub.Subject(),
		Name:         sub.Name,
		Email:        sub.Email,
		Kind:         sub.Kind.Label(),
		Organization: sub.Organization,
		Position:     sub.Position,
		Phone:        sub.Phone,
		Message:      sub.Message,
		ReceivedAt:   now.UTC().Format(time.RFC1123),
	}
	if sub.Attachment != nil {
		data.Attachment = sub.Attachment.Filename
	}

	var html bytes.Buffer
	if err := templates.ExecuteTemplate(&html, "contact.html", data); err != nil {
		return nil, fmt.Errorf("failed to render contact email template: %w", err)
	}

	return &Message{
		From:     from,
		To:       to,
		ReplyTo:  sub.Email,
		Subject:  data.Subject,
		HTMLBody: html.String(),
		TextBody: contactText(data),
	}, nil
}

func contactText(d contactData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New message from your website\n\n")
	fmt.Fprintf(&b, "Name: %s\n", d.Name)
	fmt.Fprintf(&b, "Email: %s\n", d.Email)
	fmt.Fprintf(&b, "Sender type: %s\n", d.Kind)
	if d.Organization != "" {
		fmt.Fprintf(&b, "Organization: %s\n", d.Organization)
	}
	if d.Position != "" {
		fmt.Fprintf(&b, "Position: %s\n", d.Position)
	}
	if d.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", d.Phone)
	}
	if d.Attachment != "" {
		fmt.Fprintf(&b, "Attachment: %s\n", d.Attachment)
	}
	fmt.Fprintf(&b, "\n%s\n", d.Message)
	return b.String()
}

// emailTemplateFuncs returns template functions available in email templates.
func emailTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// nl2br escapes s and turns line breaks into <br/>.
		"nl2br": func(s string) template.HTML {
			s = strings.ReplaceAll(s, "\r\n", "\n")
			return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(s), "\n", "<br/>"))
		},
	}
}
