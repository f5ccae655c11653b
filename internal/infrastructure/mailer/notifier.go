package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/config"
)

const timestampLayout = "02/01/2006 15:04:05 MST"

// Notifier renders contact submissions into e-mails
type Notifier struct {
	sender    Sender
	from      string
	recipient string
	cc        []string
	location  *time.Location

	notifyHTML  *template.Template
	notifyText  *texttemplate.Template
	confirmHTML *template.Template
	confirmText *texttemplate.Template
}

// NewNotifier creates a notifier that delivers through sender
func NewNotifier(sender Sender, cfg config.SMTPConfig) *Notifier {
	return &Notifier{
		sender:      sender,
		from:        cfg.Sender(),
		recipient:   cfg.Recipient,
		cc:          cfg.CCList(),
		location:    time.Local,
		notifyHTML:  template.Must(template.New("notify").Parse(notifyHTMLTemplate)),
		notifyText:  texttemplate.Must(texttemplate.New("notify").Parse(notifyTextTemplate)),
		confirmHTML: template.Must(template.New("confirm").Parse(confirmHTMLTemplate)),
		confirmText: texttemplate.Must(texttemplate.New("confirm").Parse(confirmTextTemplate)),
	}
}

// Verify checks the transport can reach the server
func (n *Notifier) Verify(ctx context.Context) error {
	return n.sender.Verify(ctx)
}

// Notify sends the submission to the site owner and returns the Message-ID
func (n *Notifier) Notify(ctx context.Context, sub entities.ContactSubmission) (string, error) {
	msg, err := n.NotificationMessage(sub)
	if err != nil {
		return "", err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return "", err
	}
	return messageID(msg), nil
}

// Confirm sends a receipt to the submitter
func (n *Notifier) Confirm(ctx context.Context, sub entities.ContactSubmission) error {
	msg, err := n.ConfirmationMessage(sub)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}

// NotificationMessage builds the owner notification for sub
func (n *Notifier) NotificationMessage(sub entities.ContactSubmission) (*mail.Msg, error) {
	data := n.templateData(sub)

	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(n.recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	if len(n.cc) > 0 {
		if err := msg.Cc(n.cc...); err != nil {
			return nil, fmt.Errorf("invalid cc address: %w", err)
		}
	}
	if err := msg.ReplyTo(sub.Email); err != nil {
		return nil, fmt.Errorf("invalid reply-to address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Novo contato pelo site: %s", sub.Name))

	if err := n.setBodies(msg, n.notifyText, n.notifyHTML, data); err != nil {
		return nil, err
	}
	msg.SetDate()
	msg.SetMessageID()
	return msg, nil
}

// ConfirmationMessage builds the receipt sent back to the submitter
func (n *Notifier) ConfirmationMessage(sub entities.ContactSubmission) (*mail.Msg, error) {
	data := n.templateData(sub)

	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(sub.Email); err != nil {
		return nil, fmt.Errorf("invalid submitter address: %w", err)
	}
	msg.Subject("Recebemos sua mensagem")

	if err := n.setBodies(msg, n.confirmText, n.confirmHTML, data); err != nil {
		return nil, err
	}
	msg.SetDate()
	msg.SetMessageID()
	return msg, nil
}

func (n *Notifier) setBodies(msg *mail.Msg, text *texttemplate.Template, html *template.Template, data templateData) error {
	var textBuf, htmlBuf bytes.Buffer
	if err := text.Execute(&textBuf, data); err != nil {
		return fmt.Errorf("failed to render text body: %w", err)
	}
	if err := html.Execute(&htmlBuf, data); err != nil {
		return fmt.Errorf("failed to render HTML body: %w", err)
	}
	msg.SetBodyString(mail.TypeTextPlain, textBuf.String())
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBuf.String())
	return nil
}

type templateData struct {
	Name      string
	Email     string
	Phone     string
	Message   string
	IP        string
	UserAgent string
	Timestamp string
}

func (n *Notifier) templateData(sub entities.ContactSubmission) templateData {
	at := sub.SubmittedAt
	if at.IsZero() {
		at = time.Now()
	}
	return templateData{
		Name:      sub.Name,
		Email:     sub.Email,
		Phone:     sub.Phone,
		Message:   sub.Message,
		IP:        sub.IP,
		UserAgent: sub.UserAgent,
		Timestamp: at.In(n.location).Format(timestampLayout),
	}
}

func messageID(msg *mail.Msg) string {
	ids := msg.GetGenHeader(mail.HeaderMessageID)
	if len(ids) == 0 {
		return ""
	}
	return strings.Trim(ids[0], "<>")
}

const notifyTextTemplate = `Nova mensagem recebida pelo formulário de contato.

Nome: {{.Name}}
E-mail: {{.Email}}
Telefone: {{if .Phone}}{{.Phone}}{{else}}não informado{{end}}

Mensagem:
{{.Message}}

---
IP: {{.IP}}
User-Agent: {{.UserAgent}}
Enviado em: {{.Timestamp}}
`

const notifyHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
</head>
<body style="margin: 0; padding: 20px; font-family: Arial, sans-serif; color: #1f2937;">
    <h2 style="margin: 0 0 16px 0;">Nova mensagem de contato</h2>
    <table role="presentation" cellspacing="0" cellpadding="4" border="0">
        <tr><td><strong>Nome:</strong></td><td>{{.Name}}</td></tr>
        <tr><td><strong>E-mail:</strong></td><td>{{.Email}}</td></tr>
        <tr><td><strong>Telefone:</strong></td><td>{{if .Phone}}{{.Phone}}{{else}}não informado{{end}}</td></tr>
    </table>
    <div style="margin: 16px 0; padding: 12px; background-color: #f3f4f6; border-left: 3px solid #0f766e; white-space: pre-wrap;">{{.Message}}</div>
    <p style="margin: 16px 0 0 0; padding-top: 12px; border-top: 1px solid #e5e7eb; font-size: 12px; color: #6b7280;">
        IP: {{.IP}}<br>
        User-Agent: {{.UserAgent}}<br>
        Enviado em: {{.Timestamp}}
    </p>
</body>
</html>`

const confirmTextTemplate = `Olá {{.Name}},

Recebemos sua mensagem e retornaremos o contato em breve.

Sua mensagem:
{{.Message}}
`

const confirmHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
</head>
<body style="margin: 0; padding: 20px; font-family: Arial, sans-serif; color: #1f2937;">
    <p>Olá {{.Name}},</p>
    <p>Recebemos sua mensagem e retornaremos o contato em breve.</p>
    <div style="margin: 16px 0; padding: 12px; background-color: #f3f4f6; white-space: pre-wrap;">{{.Message}}</div>
</body>
</html>`
