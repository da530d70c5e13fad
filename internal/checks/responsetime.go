package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ResponseTimeCheck measures the full request duration against warning
// and failure thresholds. The failure threshold dominates.
type ResponseTimeCheck struct{}

func (c *ResponseTimeCheck) Type() string        { return "response_time" }
func (c *ResponseTimeCheck) DisplayName() string { return "Response Time" }
func (c *ResponseTimeCheck) Description() string {
	return "Measures response time against warning and failure thresholds"
}

func (c *ResponseTimeCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "warning_threshold_ms", Label: "Warning Threshold (ms)", Type: FieldNumber,
				Default: "1000"},
			{Key: "failure_threshold_ms", Label: "Failure Threshold (ms)", Type: FieldNumber,
				Default: "5000"},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "30"},
		},
	}
}

func (c *ResponseTimeCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	warnMS := cfgInt(config, "warning_threshold_ms", 1000)
	failMS := cfgInt(config, "failure_threshold_ms", 5000)
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 30)) * time.Second

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return failure(fmt.Sprintf("invalid URL: %v", err), -1, nil)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("request failed: %v", err),
			int(time.Since(start).Milliseconds()), nil)
	}
	// Time-to-last-byte, not just headers.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10<<20))
	resp.Body.Close()
	elapsed := int(time.Since(start).Milliseconds())

	data := map[string]any{
		"status_code":          resp.StatusCode,
		"warning_threshold_ms": warnMS,
		"failure_threshold_ms": failMS,
	}

	if elapsed >= failMS {
		return failure(fmt.Sprintf("response took %dms, failure threshold is %dms", elapsed, failMS),
			elapsed, data)
	}
	if elapsed >= warnMS {
		return warning(fmt.Sprintf("response took %dms, warning threshold is %dms", elapsed, warnMS),
			elapsed, data)
	}
	return success(elapsed, data)
}
