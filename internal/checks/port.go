package checks

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

// PortCheck attempts TCP connections to a list of ports on the site's
// host and fails if any are closed.
type PortCheck struct{}

func (c *PortCheck) Type() string        { return "port" }
func (c *PortCheck) DisplayName() string { return "TCP Ports" }
func (c *PortCheck) Description() string {
	return "Verifies that a set of TCP ports accept connections"
}

func (c *PortCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "ports", Label: "Ports", Type: FieldList, Default: "80,443",
				HelpText: "TCP port numbers to probe"},
			{Key: "timeout_seconds", Label: "Per-port Timeout (seconds)", Type: FieldNumber,
				Default: "5"},
		},
	}
}

func (c *PortCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	ports := cfgIntSlice(config, "ports")
	if len(ports) == 0 {
		ports = []int{80, 443}
	}
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 5)) * time.Second

	host, err := hostFromURL(siteURL)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	dialer := &net.Dialer{Timeout: timeout}
	results := make(map[string]any, len(ports))
	var closed []string
	start := time.Now()
	for _, port := range ports {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		portStart := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		portMS := int(time.Since(portStart).Milliseconds())
		key := strconv.Itoa(port)
		if err != nil {
			results[key] = map[string]any{"open": false, "error": err.Error()}
			closed = append(closed, key)
			continue
		}
		conn.Close()
		results[key] = map[string]any{"open": true, "connect_time_ms": portMS}
	}
	elapsed := int(time.Since(start).Milliseconds())

	data := map[string]any{"host": host, "ports": results}
	if len(closed) > 0 {
		return failure("Closed ports: "+strings.Join(closed, ", "), elapsed, data)
	}
	return success(elapsed, data)
}
