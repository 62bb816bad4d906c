package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mindweave/internal/contact"
)

type EmailConfig struct {
	APIKey     string
	Host       string
	FromEmail  string
	FromName   string
	AdminEmail string
	OwnerName  string
}

// Email sends the admin notification and, when the sender left a usable
// address, a confirmation to the sender.
type Email struct {
	cfg EmailConfig
}

func NewEmail(cfg EmailConfig) *Email {
	if cfg.FromName == "" {
		cfg.FromName = cfg.OwnerName
	}
	return &Email{cfg: cfg}
}

var adminTemplate = template.Must(template.New("admin").Parse(`<h3>New Client Entry</h3>
<ul>
  <li><b>Name:</b> {{.FirstName}} {{.LastName}}</li>
  <li><b>Email:</b> {{.Email}}</li>
  <li><b>Company:</b> {{.Company}}</li>
  <li><b>Project Type:</b> {{.ProjectType}}</li>
  <li><b>Description:</b> {{.Description}}</li>
  <li><b>Timeline:</b> {{.Timeline}}</li>
</ul>`))

var confirmTemplate = template.Must(template.New("confirm").Parse(`<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2 style="color: #2c3e50;">Hello {{if .Message.FirstName}}{{.Message.FirstName}}{{else}}there{{end}},</h2>
  <p>Thank you for getting in touch with me via my portfolio website.</p>
  <p>I have received your message and will review it carefully. I aim to respond to all inquiries as soon as possible, typically within 24-48 hours.</p>
  <p>Looking forward to connecting with you!</p>
  <br/>
  <p>Best regards,<br/><strong>{{.Owner}}</strong></p>
</div>`))

func (e *Email) Notify(ctx context.Context, m contact.Message) error {
	if e.cfg.AdminEmail != "" {
		body, err := render(adminTemplate, m)
		if err != nil {
			return err
		}
		if err := e.send(ctx, e.cfg.AdminEmail, "New Client Entry", adminPlain(m), body); err != nil {
			return fmt.Errorf("send admin email: %w", err)
		}
	}

	if m.CanConfirm() {
		body, err := render(confirmTemplate, map[string]any{"Message": m, "Owner": e.cfg.OwnerName})
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("Thank you for reaching out to %s!", e.cfg.OwnerName)
		plain := fmt.Sprintf("Hello %s,\n\nThank you for getting in touch via my portfolio website. I have received your message and will reply within 24-48 hours.\n\nBest regards,\n%s\n", greetingName(m), e.cfg.OwnerName)
		if err := e.send(ctx, m.Email, subject, plain, body); err != nil {
			return fmt.Errorf("send confirmation email: %w", err)
		}
	}
	return nil
}

func (e *Email) send(ctx context.Context, to, subject, plainBody, htmlBody string) error {
	msg := mail.NewSingleEmail(
		mail.NewEmail(e.cfg.FromName, e.cfg.FromEmail),
		subject,
		mail.NewEmail(to, to),
		plainBody,
		htmlBody,
	)
	// One request per mail: sendgrid.Client stores the body on a shared request.
	req := sendgrid.GetRequest(e.cfg.APIKey, "/v3/mail/send", e.cfg.Host)
	req.Method = http.MethodPost
	req.Body = mail.GetRequestBody(msg)
	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func adminPlain(m contact.Message) string {
	return fmt.Sprintf("New Client Entry\n\nName: %s\nEmail: %s\nCompany: %s\nProject Type: %s\nDescription: %s\nTimeline: %s\n",
		m.FullName(), m.Email, m.Company, m.ProjectType, m.Description, m.Timeline)
}

func greetingName(m contact.Message) string {
	if m.FirstName == "" {
		return "there"
	}
	return m.FirstName
}
