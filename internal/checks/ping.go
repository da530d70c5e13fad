package checks

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// PingCheck shells out to the system ping binary. ICMP sockets need
// elevated privileges, the setuid ping binary does not.
type PingCheck struct{}

func (c *PingCheck) Type() string        { return "ping" }
func (c *PingCheck) DisplayName() string { return "Ping" }
func (c *PingCheck) Description() string {
	return "Sends ICMP echo requests and measures round-trip latency"
}

func (c *PingCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "count", Label: "Packet Count", Type: FieldNumber, Default: "3"},
			{Key: "max_latency_ms", Label: "Max Latency (ms)", Type: FieldNumber,
				Default: "1000", HelpText: "Average latency above this produces a warning"},
			{Key: "timeout_seconds", Label: "Per-packet Timeout (seconds)", Type: FieldNumber,
				Default: "5"},
		},
	}
}

var (
	pingLossRe = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)
	pingRTTRe  = regexp.MustCompile(`= ([\d.]+)/([\d.]+)/([\d.]+)`)
)

func (c *PingCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	count := cfgInt(config, "count", 3)
	maxLatency := cfgInt(config, "max_latency_ms", 1000)
	timeout := cfgInt(config, "timeout_seconds", 5)

	host, err := hostFromURL(siteURL)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	cmd := exec.CommandContext(ctx, "ping",
		"-c", strconv.Itoa(count),
		"-W", strconv.Itoa(timeout),
		host)
	out, err := cmd.CombinedOutput()
	output := string(out)

	sent, received := count, 0
	if m := pingLossRe.FindStringSubmatch(output); m != nil {
		sent, _ = strconv.Atoi(m[1])
		received, _ = strconv.Atoi(m[2])
	}

	data := map[string]any{
		"host":             host,
		"packets_sent":     sent,
		"packets_received": received,
	}

	var avgMS float64
	if m := pingRTTRe.FindStringSubmatch(output); m != nil {
		minRTT, _ := strconv.ParseFloat(m[1], 64)
		avgMS, _ = strconv.ParseFloat(m[2], 64)
		maxRTT, _ := strconv.ParseFloat(m[3], 64)
		data["rtt_min_ms"] = minRTT
		data["rtt_avg_ms"] = avgMS
		data["rtt_max_ms"] = maxRTT
	}

	if err != nil || received == 0 {
		if strings.TrimSpace(output) != "" {
			data["output"] = strings.TrimSpace(output)
		}
		return failure(fmt.Sprintf("Host %s is unreachable", host), -1, data)
	}

	elapsed := int(avgMS)
	if sent > 0 && received < sent {
		return warning(fmt.Sprintf("packet loss: %d of %d packets received", received, sent),
			elapsed, data)
	}
	if avgMS > float64(maxLatency) {
		return warning(fmt.Sprintf("average latency %.1fms exceeds %dms", avgMS, maxLatency),
			elapsed, data)
	}
	return success(elapsed, data)
}
