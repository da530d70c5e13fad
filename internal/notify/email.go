package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailChannel delivers alerts over SMTP as multipart text+HTML mail.
type EmailChannel struct{}

func (c *EmailChannel) Type() string        { return "email" }
func (c *EmailChannel) DisplayName() string { return "Email (SMTP)" }

func (c *EmailChannel) ConfigSchema() ChannelSchema {
	return ChannelSchema{
		Type: c.Type(), Label: c.DisplayName(),
		Fields: []ChannelField{
			{Key: "host", Label: "Hostname", Type: FieldText, Required: true,
				Placeholder: "smtp.gmail.com"},
			{Key: "port", Label: "Port", Type: FieldNumber, Required: true,
				Default: "587", Placeholder: "587"},
			{Key: "security", Label: "Security", Type: FieldSelect, Default: "starttls",
				Options: []SelectOption{
					{Value: "starttls", Label: "STARTTLS (25, 587)"},
					{Value: "ssl", Label: "SSL/TLS (465)"},
					{Value: "none", Label: "None"},
				}},
			{Key: "username", Label: "Username", Type: FieldText,
				Placeholder: "user@example.com"},
			{Key: "password", Label: "Password", Type: FieldPassword},
			{Key: "from", Label: "From Email", Type: FieldText, Required: true,
				Placeholder: "alerts@example.com"},
			{Key: "to", Label: "To Email", Type: FieldText, Required: true,
				Placeholder: "admin@example.com",
				HelpText:    "Comma-separated for multiple recipients"},
		},
	}
}

func (c *EmailChannel) Send(ctx context.Context, config map[string]any, p Payload) error {
	from := cfgString(config, "from", "")
	to := splitRecipients(cfgString(config, "to", ""))
	if from == "" || len(to) == 0 {
		return fmt.Errorf("email channel needs from and to addresses")
	}

	subject := fmt.Sprintf("%s [%s] %s - %s",
		triggerEmoji(p.Trigger), triggerLabel(p.Trigger), p.SiteName, p.CheckName)
	msg := buildMultipartMessage(from, to, subject, emailText(p), emailHTML(p))

	client, err := smtpClient(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return client.Quit()
}

// Test connects, negotiates TLS and authenticates without sending mail.
func (c *EmailChannel) Test(ctx context.Context, config map[string]any) error {
	client, err := smtpClient(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

// smtpClient dials and prepares an authenticated SMTP client per the
// channel configuration.
func smtpClient(ctx context.Context, config map[string]any) (*smtp.Client, error) {
	host := cfgString(config, "host", "")
	port := cfgInt(config, "port", 587)
	security := cfgString(config, "security", "starttls")
	username := cfgString(config, "username", "")
	password := cfgString(config, "password", "")

	if host == "" {
		return nil, fmt.Errorf("email channel needs an SMTP host")
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := &net.Dialer{Timeout: 15 * time.Second}

	var conn net.Conn
	var err error
	if security == "ssl" {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP greeting: %w", err)
	}

	if security == "starttls" {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if username != "" && password != "" {
		auth := smtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP auth: %w", err)
		}
	}
	return client, nil
}

func splitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

const emailBoundary = "sitewatch-alt-boundary"

func buildMultipartMessage(from string, to []string, subject, textBody, htmlBody string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", emailBoundary)

	fmt.Fprintf(&b, "--%s\r\n", emailBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(textBody)
	b.WriteString("\r\n\r\n")

	fmt.Fprintf(&b, "--%s\r\n", emailBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", emailBoundary)
	return b.String()
}

func emailText(p Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", summaryLine(p))
	fmt.Fprintf(&b, "Site:   %s (%s)\n", p.SiteName, p.SiteURL)
	fmt.Fprintf(&b, "Check:  %s (%s)\n", p.CheckName, p.CheckType)
	fmt.Fprintf(&b, "Status: %s\n", p.Status)
	if p.ErrorMessage != "" {
		fmt.Fprintf(&b, "Detail: %s\n", p.ErrorMessage)
	}
	if p.IncidentID != nil {
		fmt.Fprintf(&b, "Incident: #%d (%d failures)\n", *p.IncidentID, p.FailureCount)
	}
	fmt.Fprintf(&b, "Time:   %s\n", p.CheckedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func emailHTML(p Payload) string {
	detail := ""
	if p.ErrorMessage != "" {
		detail = fmt.Sprintf("<p><strong>Detail:</strong> %s</p>", htmlEscape(p.ErrorMessage))
	}
	incident := ""
	if p.IncidentID != nil {
		incident = fmt.Sprintf("<p><strong>Incident:</strong> #%d (%d failures)</p>",
			*p.IncidentID, p.FailureCount)
	}
	return fmt.Sprintf(`<html><body>
<div style="border-left:4px solid %s;padding:8px 16px;font-family:sans-serif">
<h2 style="color:%s">[%s] %s - %s</h2>
<p><strong>Site:</strong> %s (%s)</p>
<p><strong>Check:</strong> %s (%s)</p>
<p><strong>Status:</strong> %s</p>
%s%s
<p style="color:#6b7280">%s</p>
</div>
</body></html>`,
		statusColor(p.Status), statusColor(p.Status),
		triggerLabel(p.Trigger), htmlEscape(p.SiteName), htmlEscape(p.CheckName),
		htmlEscape(p.SiteName), htmlEscape(p.SiteURL),
		htmlEscape(p.CheckName), p.CheckType, p.Status,
		detail, incident,
		p.CheckedAt.UTC().Format(time.RFC3339))
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
