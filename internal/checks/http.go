package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"sitewatch/internal/models"
)

// HTTPCheck performs a plain HTTP request and verifies the status code.
type HTTPCheck struct{}

func (c *HTTPCheck) Type() string        { return "http" }
func (c *HTTPCheck) DisplayName() string { return "HTTP Status" }
func (c *HTTPCheck) Description() string {
	return "Requests the site URL and verifies the HTTP status code"
}

func (c *HTTPCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "expected_status_code", Label: "Expected Status Code", Type: FieldNumber,
				Default: "200", Placeholder: "200"},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
			{Key: "max_response_time_ms", Label: "Max Response Time (ms)", Type: FieldNumber,
				Default: "0", HelpText: "Latency above this produces a warning; 0 disables"},
			{Key: "follow_redirects", Label: "Follow Redirects", Type: FieldCheckbox,
				Default: "true"},
			{Key: "method", Label: "HTTP Method", Type: FieldSelect, Default: "GET",
				Options: []SelectOption{
					{Value: "GET", Label: "GET"},
					{Value: "HEAD", Label: "HEAD"},
				}},
		},
	}
}

func (c *HTTPCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	expected := cfgInt(config, "expected_status_code", 200)
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second
	maxMS := cfgInt(config, "max_response_time_ms", 0)
	method := cfgString(config, "method", http.MethodGet)

	client := &http.Client{Timeout: timeout}
	if !cfgBool(config, "follow_redirects", true) {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, siteURL, nil)
	if err != nil {
		return failure(fmt.Sprintf("invalid URL: %v", err), -1, nil)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := int(time.Since(start).Milliseconds())
	if err != nil {
		return failure(fmt.Sprintf("request failed: %v", err), elapsed, nil)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	data := map[string]any{
		"status_code":    resp.StatusCode,
		"content_length": len(body),
		"headers":        headers,
	}

	if resp.StatusCode != expected {
		return Outcome{
			Status:         models.StatusFailure,
			ResponseTimeMS: &elapsed,
			ErrorMessage:   fmt.Sprintf("Expected status %d, got %d", expected, resp.StatusCode),
			ResultData:     data,
		}
	}
	if maxMS > 0 && elapsed > maxMS {
		return warning(fmt.Sprintf("response time %dms exceeds %dms", elapsed, maxMS),
			elapsed, data)
	}
	return success(elapsed, data)
}
