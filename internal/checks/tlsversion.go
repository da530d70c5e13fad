package checks

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"
)

// TLSVersionCheck verifies the negotiated protocol version meets a
// minimum and the cipher suite is not a known-weak one.
type TLSVersionCheck struct{}

func (c *TLSVersionCheck) Type() string        { return "tls" }
func (c *TLSVersionCheck) DisplayName() string { return "TLS Version" }
func (c *TLSVersionCheck) Description() string {
	return "Verifies the negotiated TLS version and cipher suite strength"
}

func (c *TLSVersionCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "minimum_tls_version", Label: "Minimum TLS Version", Type: FieldSelect,
				Default: "TLSv1.2",
				Options: []SelectOption{
					{Value: "TLSv1", Label: "TLS 1.0"},
					{Value: "TLSv1.1", Label: "TLS 1.1"},
					{Value: "TLSv1.2", Label: "TLS 1.2"},
					{Value: "TLSv1.3", Label: "TLS 1.3"},
				}},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

// tlsVersionOrder ranks protocol names oldest to newest.
var tlsVersionOrder = []string{"TLSv1", "TLSv1.1", "TLSv1.2", "TLSv1.3"}

var weakCipherPatterns = []string{"NULL", "EXPORT", "DES", "RC4", "MD5", "anon", "ADH", "AECDH"}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return fmt.Sprintf("unknown (0x%04x)", v)
	}
}

func tlsVersionRank(name string) int {
	for i, n := range tlsVersionOrder {
		if n == name {
			return i
		}
	}
	return -1
}

// IsWeakCipher reports whether a cipher suite name matches a known-weak
// pattern.
func IsWeakCipher(suite string) bool {
	upper := strings.ToUpper(suite)
	for _, p := range weakCipherPatterns {
		if strings.Contains(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

func (c *TLSVersionCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	minVersion := cfgString(config, "minimum_tls_version", "TLSv1.2")
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	minRank := tlsVersionRank(minVersion)
	if minRank < 0 {
		return failure(fmt.Sprintf("unknown TLS version: %s", minVersion), -1, nil)
	}

	host, addr, err := tlsAddress(siteURL)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		// Old protocol versions must still be observable, otherwise the
		// check cannot report what the server actually negotiates.
		Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS10},
	}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return failure(fmt.Sprintf("TLS connection failed: %v", err), elapsed, nil)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	negotiated := tlsVersionName(state.Version)
	cipher := tls.CipherSuiteName(state.CipherSuite)

	data := map[string]any{
		"tls_version":  negotiated,
		"cipher_suite": cipher,
		"minimum":      minVersion,
	}

	rank := tlsVersionRank(negotiated)
	if rank < 0 || rank < minRank {
		return failure(fmt.Sprintf("negotiated %s is below minimum %s", negotiated, minVersion),
			elapsed, data)
	}
	if IsWeakCipher(cipher) {
		return warning(fmt.Sprintf("weak cipher suite negotiated: %s", cipher), elapsed, data)
	}
	if negotiated == "TLSv1" || negotiated == "TLSv1.1" {
		return warning(fmt.Sprintf("deprecated protocol version negotiated: %s", negotiated),
			elapsed, data)
	}
	return success(elapsed, data)
}
