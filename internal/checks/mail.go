package checks

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Mail checks verify a mail server in stages and record each milestone
// in result data, so the failure message alone tells how far the
// handshake got.

// dialMail opens the TCP or implicit-TLS connection for a mail check.
func dialMail(ctx context.Context, host string, port int, useSSL bool, timeout time.Duration) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := &net.Dialer{Timeout: timeout}
	if useSSL {
		td := &tls.Dialer{NetDialer: d, Config: &tls.Config{ServerName: host}}
		return td.DialContext(ctx, "tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

func mailHost(siteURL string, config map[string]any) (string, error) {
	if h := cfgString(config, "host", ""); h != "" {
		return h, nil
	}
	return hostFromURL(siteURL)
}

// ─── SMTP ───────────────────────────────────────────────────────────────

// SMTPCheck connects to an SMTP server, negotiates STARTTLS and
// optionally authenticates.
type SMTPCheck struct{}

func (c *SMTPCheck) Type() string        { return "smtp" }
func (c *SMTPCheck) DisplayName() string { return "SMTP Server" }
func (c *SMTPCheck) Description() string {
	return "Verifies an SMTP server accepts connections and credentials"
}

func (c *SMTPCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "host", Label: "Hostname", Type: FieldText,
				HelpText: "Leave empty to use the site URL's hostname"},
			{Key: "port", Label: "Port", Type: FieldNumber, Default: "587"},
			{Key: "use_tls", Label: "Use STARTTLS", Type: FieldCheckbox, Default: "true"},
			{Key: "username", Label: "Username", Type: FieldText},
			{Key: "password", Label: "Password", Type: FieldText,
				HelpText: "Leave empty to only verify the connection"},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

func (c *SMTPCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	port := cfgInt(config, "port", 587)
	useTLS := cfgBool(config, "use_tls", true)
	username := cfgString(config, "username", "")
	password := cfgString(config, "password", "")
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	host, err := mailHost(siteURL, config)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	data := map[string]any{
		"host": host, "port": port,
		"connection_established": false,
		"tls_established":        false,
		"authenticated":          false,
	}

	start := time.Now()
	conn, err := dialMail(ctx, host, port, false, timeout)
	if err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err),
			int(time.Since(start).Milliseconds()), data)
	}
	conn.SetDeadline(time.Now().Add(timeout))
	data["connection_established"] = true

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return failure(fmt.Sprintf("SMTP greeting failed: %v", err),
			int(time.Since(start).Milliseconds()), data)
	}
	defer client.Close()

	if useTLS {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return failure(fmt.Sprintf("STARTTLS failed: %v", err),
				int(time.Since(start).Milliseconds()), data)
		}
		data["tls_established"] = true
	}

	if username != "" && password != "" {
		auth := smtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			return failure(fmt.Sprintf("authentication failed: %v", err),
				int(time.Since(start).Milliseconds()), data)
		}
		data["authenticated"] = true
	}

	client.Quit()
	return success(int(time.Since(start).Milliseconds()), data)
}

// ─── IMAP ───────────────────────────────────────────────────────────────

// IMAPCheck speaks just enough IMAP to verify greeting, login and
// INBOX access.
type IMAPCheck struct{}

func (c *IMAPCheck) Type() string        { return "imap" }
func (c *IMAPCheck) DisplayName() string { return "IMAP Server" }
func (c *IMAPCheck) Description() string {
	return "Verifies an IMAP server accepts connections, credentials and mailbox access"
}

func (c *IMAPCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "host", Label: "Hostname", Type: FieldText,
				HelpText: "Leave empty to use the site URL's hostname"},
			{Key: "port", Label: "Port", Type: FieldNumber, Default: "993"},
			{Key: "use_ssl", Label: "Use Implicit TLS", Type: FieldCheckbox, Default: "true"},
			{Key: "username", Label: "Username", Type: FieldText},
			{Key: "password", Label: "Password", Type: FieldText},
			{Key: "check_mailbox", Label: "Verify INBOX Access", Type: FieldCheckbox},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

// imapCommand sends one tagged command and reads until the tagged
// completion line.
func imapCommand(rw *bufio.ReadWriter, tag, command string) (string, error) {
	if _, err := fmt.Fprintf(rw, "%s %s\r\n", tag, command); err != nil {
		return "", err
	}
	if err := rw.Flush(); err != nil {
		return "", err
	}
	for {
		line, err := rw.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, tag+" ") {
			return strings.TrimPrefix(line, tag+" "), nil
		}
	}
}

func (c *IMAPCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	port := cfgInt(config, "port", 993)
	useSSL := cfgBool(config, "use_ssl", true)
	username := cfgString(config, "username", "")
	password := cfgString(config, "password", "")
	checkMailbox := cfgBool(config, "check_mailbox", false)
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	host, err := mailHost(siteURL, config)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	data := map[string]any{
		"host": host, "port": port,
		"connection_established": false,
		"authenticated":          false,
		"mailbox_accessible":     false,
	}

	start := time.Now()
	conn, err := dialMail(ctx, host, port, useSSL, timeout)
	if err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err),
			int(time.Since(start).Milliseconds()), data)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	greeting, err := rw.ReadString('\n')
	if err != nil || !strings.HasPrefix(greeting, "* OK") {
		return failure(fmt.Sprintf("unexpected IMAP greeting: %q", strings.TrimSpace(greeting)),
			int(time.Since(start).Milliseconds()), data)
	}
	data["connection_established"] = true

	if username != "" && password != "" {
		resp, err := imapCommand(rw, "a1", fmt.Sprintf("LOGIN %q %q", username, password))
		if err != nil {
			return failure(fmt.Sprintf("LOGIN failed: %v", err),
				int(time.Since(start).Milliseconds()), data)
		}
		if !strings.HasPrefix(resp, "OK") {
			return failure(fmt.Sprintf("authentication failed: %s", resp),
				int(time.Since(start).Milliseconds()), data)
		}
		data["authenticated"] = true

		if checkMailbox {
			resp, err := imapCommand(rw, "a2", "SELECT INBOX")
			if err != nil || !strings.HasPrefix(resp, "OK") {
				return failure(fmt.Sprintf("INBOX not accessible: %s", resp),
					int(time.Since(start).Milliseconds()), data)
			}
			data["mailbox_accessible"] = true
		}
		imapCommand(rw, "a3", "LOGOUT")
	}
	return success(int(time.Since(start).Milliseconds()), data)
}

// ─── POP3 ───────────────────────────────────────────────────────────────

// POP3Check verifies a POP3 server's greeting, credentials and mailbox
// statistics.
type POP3Check struct{}

func (c *POP3Check) Type() string        { return "pop3" }
func (c *POP3Check) DisplayName() string { return "POP3 Server" }
func (c *POP3Check) Description() string {
	return "Verifies a POP3 server accepts connections and credentials"
}

func (c *POP3Check) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "host", Label: "Hostname", Type: FieldText,
				HelpText: "Leave empty to use the site URL's hostname"},
			{Key: "port", Label: "Port", Type: FieldNumber, Default: "995"},
			{Key: "use_ssl", Label: "Use Implicit TLS", Type: FieldCheckbox, Default: "true"},
			{Key: "username", Label: "Username", Type: FieldText},
			{Key: "password", Label: "Password", Type: FieldText},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

// pop3Command sends one command and reads the single status line.
func pop3Command(rw *bufio.ReadWriter, command string) (string, error) {
	if _, err := fmt.Fprintf(rw, "%s\r\n", command); err != nil {
		return "", err
	}
	if err := rw.Flush(); err != nil {
		return "", err
	}
	line, err := rw.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *POP3Check) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	port := cfgInt(config, "port", 995)
	useSSL := cfgBool(config, "use_ssl", true)
	username := cfgString(config, "username", "")
	password := cfgString(config, "password", "")
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	host, err := mailHost(siteURL, config)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	data := map[string]any{
		"host": host, "port": port,
		"connection_established": false,
		"authenticated":          false,
	}

	start := time.Now()
	conn, err := dialMail(ctx, host, port, useSSL, timeout)
	if err != nil {
		return failure(fmt.Sprintf("connection failed: %v", err),
			int(time.Since(start).Milliseconds()), data)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	greeting, err := rw.ReadString('\n')
	if err != nil || !strings.HasPrefix(greeting, "+OK") {
		return failure(fmt.Sprintf("unexpected POP3 greeting: %q", strings.TrimSpace(greeting)),
			int(time.Since(start).Milliseconds()), data)
	}
	data["connection_established"] = true

	if username != "" && password != "" {
		if resp, err := pop3Command(rw, "USER "+username); err != nil || !strings.HasPrefix(resp, "+OK") {
			return failure(fmt.Sprintf("USER rejected: %s", resp),
				int(time.Since(start).Milliseconds()), data)
		}
		resp, err := pop3Command(rw, "PASS "+password)
		if err != nil || !strings.HasPrefix(resp, "+OK") {
			return failure(fmt.Sprintf("authentication failed: %s", resp),
				int(time.Since(start).Milliseconds()), data)
		}
		data["authenticated"] = true

		if resp, err := pop3Command(rw, "STAT"); err == nil && strings.HasPrefix(resp, "+OK") {
			parts := strings.Fields(resp)
			if len(parts) >= 2 {
				if n, err := strconv.Atoi(parts[1]); err == nil {
					data["message_count"] = n
				}
			}
		}
		pop3Command(rw, "QUIT")
	}
	return success(int(time.Since(start).Milliseconds()), data)
}
