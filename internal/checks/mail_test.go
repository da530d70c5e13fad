package checks

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"

	"sitewatch/internal/models"
)

// startMailServer runs a line-based fake mail server. greeting is sent
// on connect; respond maps the first word of each command to a reply.
func startMailServer(t *testing.T, greeting string, respond map[string]string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				fmt.Fprintf(conn, "%s\r\n", greeting)
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					fields := strings.Fields(line)
					if len(fields) == 0 {
						continue
					}
					key := strings.ToUpper(fields[0])
					// IMAP commands are tagged; the verb is the second field.
					if reply, ok := respond[key]; ok {
						fmt.Fprintf(conn, "%s\r\n", reply)
						continue
					}
					if len(fields) > 1 {
						verb := strings.ToUpper(fields[1])
						if reply, ok := respond[verb]; ok {
							reply = strings.ReplaceAll(reply, "{tag}", fields[0])
							fmt.Fprintf(conn, "%s\r\n", reply)
							continue
						}
					}
					fmt.Fprintf(conn, "-ERR unknown\r\n")
				}
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestPOP3CheckLogin(t *testing.T) {
	host, port := startMailServer(t, "+OK pop ready", map[string]string{
		"USER": "+OK",
		"PASS": "+OK logged in",
		"STAT": "+OK 3 12345",
		"QUIT": "+OK bye",
	})

	c := &POP3Check{}
	out := c.Execute(context.Background(), "https://mail.example.com", map[string]any{
		"host":     host,
		"port":     float64(port),
		"use_ssl":  false,
		"username": "bob",
		"password": "secret",
	})
	if out.Status != models.StatusSuccess {
		t.Fatalf("status = %s, want success (%s)", out.Status, out.ErrorMessage)
	}
	if out.ResultData["authenticated"] != true {
		t.Error("expected authenticated milestone")
	}
	if out.ResultData["message_count"] != 3 {
		t.Errorf("message_count = %v, want 3", out.ResultData["message_count"])
	}
}

func TestPOP3CheckBadCredentials(t *testing.T) {
	host, port := startMailServer(t, "+OK pop ready", map[string]string{
		"USER": "+OK",
		"PASS": "-ERR invalid password",
	})

	c := &POP3Check{}
	out := c.Execute(context.Background(), "https://mail.example.com", map[string]any{
		"host":     host,
		"port":     float64(port),
		"use_ssl":  false,
		"username": "bob",
		"password": "wrong",
	})
	if out.Status != models.StatusFailure {
		t.Fatalf("status = %s, want failure", out.Status)
	}
	if !strings.Contains(out.ErrorMessage, "authentication failed") {
		t.Errorf("error = %q", out.ErrorMessage)
	}
	if out.ResultData["connection_established"] != true {
		t.Error("connection milestone should be recorded before the auth failure")
	}
}

func TestPOP3CheckBadGreeting(t *testing.T) {
	host, port := startMailServer(t, "hello?", nil)

	c := &POP3Check{}
	out := c.Execute(context.Background(), "https://mail.example.com", map[string]any{
		"host": host, "port": float64(port), "use_ssl": false,
	})
	if out.Status != models.StatusFailure {
		t.Fatalf("status = %s, want failure", out.Status)
	}
	if !strings.Contains(out.ErrorMessage, "unexpected POP3 greeting") {
		t.Errorf("error = %q", out.ErrorMessage)
	}
}

func TestIMAPCheckLoginAndMailbox(t *testing.T) {
	host, port := startMailServer(t, "* OK imap ready", map[string]string{
		"LOGIN":  "{tag} OK logged in",
		"SELECT": "{tag} OK [READ-WRITE] INBOX selected",
		"LOGOUT": "{tag} OK bye",
	})

	c := &IMAPCheck{}
	out := c.Execute(context.Background(), "https://mail.example.com", map[string]any{
		"host":          host,
		"port":          float64(port),
		"use_ssl":       false,
		"username":      "bob",
		"password":      "secret",
		"check_mailbox": true,
	})
	if out.Status != models.StatusSuccess {
		t.Fatalf("status = %s, want success (%s)", out.Status, out.ErrorMessage)
	}
	if out.ResultData["mailbox_accessible"] != true {
		t.Error("expected mailbox milestone")
	}
}

func TestIMAPCheckLoginRejected(t *testing.T) {
	host, port := startMailServer(t, "* OK imap ready", map[string]string{
		"LOGIN": "{tag} NO [AUTHENTICATIONFAILED] bad credentials",
	})

	c := &IMAPCheck{}
	out := c.Execute(context.Background(), "https://mail.example.com", map[string]any{
		"host":     host,
		"port":     float64(port),
		"use_ssl":  false,
		"username": "bob",
		"password": "wrong",
	})
	if out.Status != models.StatusFailure {
		t.Fatalf("status = %s, want failure", out.Status)
	}
	if !strings.Contains(out.ErrorMessage, "authentication failed") {
		t.Errorf("error = %q", out.ErrorMessage)
	}
}

func TestSMTPCheckPlainConnection(t *testing.T) {
	host, port := startMailServer(t, "220 mail.example.com ESMTP", map[string]string{
		"EHLO": "250 mail.example.com",
		"HELO": "250 mail.example.com",
		"QUIT": "221 bye",
	})

	c := &SMTPCheck{}
	out := c.Execute(context.Background(), "https://mail.example.com", map[string]any{
		"host":    host,
		"port":    float64(port),
		"use_tls": false,
	})
	if out.Status != models.StatusSuccess {
		t.Fatalf("status = %s, want success (%s)", out.Status, out.ErrorMessage)
	}
	if out.ResultData["connection_established"] != true {
		t.Error("expected connection milestone")
	}
}

func TestMailHostPrefersConfig(t *testing.T) {
	h, err := mailHost("https://site.example.com", map[string]any{"host": "mx.example.net"})
	if err != nil || h != "mx.example.net" {
		t.Errorf("mailHost = %q, %v", h, err)
	}
	h, err = mailHost("https://site.example.com", nil)
	if err != nil || h != "site.example.com" {
		t.Errorf("mailHost = %q, %v", h, err)
	}
}
