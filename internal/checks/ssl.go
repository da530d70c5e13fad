package checks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"sitewatch/internal/models"
)

// SSLCheck connects over TLS and verifies the certificate is valid and
// not close to expiry.
type SSLCheck struct{}

func (c *SSLCheck) Type() string        { return "ssl" }
func (c *SSLCheck) DisplayName() string { return "SSL Certificate" }
func (c *SSLCheck) Description() string {
	return "Verifies the TLS certificate is valid and warns before it expires"
}

func (c *SSLCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "warning_days_before_expiry", Label: "Warn Days Before Expiry",
				Type: FieldNumber, Default: "30"},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

// tlsAddress extracts host:port from a site URL, defaulting to 443.
func tlsAddress(siteURL string) (host, addr string, err error) {
	raw := strings.TrimSpace(siteURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", "", fmt.Errorf("invalid site URL %q", siteURL)
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return u.Hostname(), net.JoinHostPort(u.Hostname(), port), nil
}

func (c *SSLCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	warnDays := cfgInt(config, "warning_days_before_expiry", 30)
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	host, addr, err := tlsAddress(siteURL)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    &tls.Config{ServerName: host},
	}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return failure(fmt.Sprintf("TLS connection failed: %v", err), elapsed, nil)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return failure("no peer certificate presented", elapsed, nil)
	}
	cert := state.PeerCertificates[0]

	status, msg, daysLeft := classifyExpiry(cert.NotAfter, warnDays, time.Now())
	data := map[string]any{
		"issuer":            cert.Issuer.String(),
		"subject":           cert.Subject.String(),
		"not_before":        cert.NotBefore.UTC().Format(time.RFC3339),
		"not_after":         cert.NotAfter.UTC().Format(time.RFC3339),
		"days_until_expiry": daysLeft,
		"serial_number":     cert.SerialNumber.String(),
	}

	switch status {
	case models.StatusFailure:
		return failure(msg, elapsed, data)
	case models.StatusWarning:
		return warning(msg, elapsed, data)
	}
	return success(elapsed, data)
}

// classifyExpiry maps a certificate's notAfter into the check outcome:
// expired is a failure, inside the warning window is a warning.
func classifyExpiry(notAfter time.Time, warnDays int, now time.Time) (models.CheckStatus, string, int) {
	daysLeft := int(notAfter.Sub(now).Hours() / 24)
	if daysLeft <= 0 {
		return models.StatusFailure,
			fmt.Sprintf("SSL certificate has expired (%d days ago)", -daysLeft), daysLeft
	}
	if daysLeft <= warnDays {
		return models.StatusWarning,
			fmt.Sprintf("SSL certificate expires in %d days", daysLeft), daysLeft
	}
	return models.StatusSuccess, "", daysLeft
}
