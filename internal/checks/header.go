package checks

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// HeaderCheck inspects response headers: required headers with value
// matching, forbidden headers, and an optional security-header audit.
type HeaderCheck struct{}

func (c *HeaderCheck) Type() string        { return "header" }
func (c *HeaderCheck) DisplayName() string { return "HTTP Headers" }
func (c *HeaderCheck) Description() string {
	return "Verifies required, forbidden and security-related response headers"
}

func (c *HeaderCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "required_headers", Label: "Required Headers", Type: FieldMap,
				HelpText: "Header to expected value. Use * for any value, /pattern/ for a regex match"},
			{Key: "forbidden_headers", Label: "Forbidden Headers", Type: FieldList},
			{Key: "security_headers_check", Label: "Audit Security Headers", Type: FieldCheckbox},
			{Key: "method", Label: "HTTP Method", Type: FieldSelect, Default: "HEAD",
				Options: []SelectOption{
					{Value: "HEAD", Label: "HEAD"},
					{Value: "GET", Label: "GET"},
				}},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

// securityHeaders are audited when security_headers_check is enabled.
// Absence only degrades the result to a warning.
var securityHeaders = []string{
	"Strict-Transport-Security",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"X-XSS-Protection",
	"Content-Security-Policy",
	"Referrer-Policy",
}

// headerValueMatches applies the required-header value syntax: "*"
// matches any non-empty value, "/pattern/" applies a regex, anything
// else is an exact match.
func headerValueMatches(want, got string) (bool, error) {
	if want == "*" {
		return got != "", nil
	}
	if strings.HasPrefix(want, "/") && strings.HasSuffix(want, "/") && len(want) > 2 {
		re, err := regexp.Compile(want[1 : len(want)-1])
		if err != nil {
			return false, fmt.Errorf("invalid header pattern %q: %w", want, err)
		}
		return re.MatchString(got), nil
	}
	return want == got, nil
}

func (c *HeaderCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	required := cfgStringMap(config, "required_headers")
	forbidden := cfgStringSlice(config, "forbidden_headers")
	auditSecurity := cfgBool(config, "security_headers_check", false)
	method := cfgString(config, "method", http.MethodHead)
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	client := &http.Client{Timeout: timeout}
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
	resp.Body.Close()

	var problems []string
	for name, want := range required {
		got := resp.Header.Get(name)
		if got == "" {
			problems = append(problems, fmt.Sprintf("missing header %s", name))
			continue
		}
		ok, err := headerValueMatches(want, got)
		if err != nil {
			return failure(err.Error(), elapsed, nil)
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("header %s is %q, want %q", name, got, want))
		}
	}
	for _, name := range forbidden {
		if resp.Header.Get(name) != "" {
			problems = append(problems, fmt.Sprintf("forbidden header %s present", name))
		}
	}

	var missingSecurity []string
	if auditSecurity {
		for _, name := range securityHeaders {
			if resp.Header.Get(name) == "" {
				missingSecurity = append(missingSecurity, name)
			}
		}
	}

	data := map[string]any{
		"status_code": resp.StatusCode,
	}
	if auditSecurity {
		present := len(securityHeaders) - len(missingSecurity)
		data["security_headers_missing"] = missingSecurity
		data["security_score"] = fmt.Sprintf("%d/%d", present, len(securityHeaders))
	}

	if len(problems) > 0 {
		return failure(strings.Join(problems, "; "), elapsed, data)
	}
	if len(missingSecurity) > 0 {
		shown := missingSecurity
		if len(shown) > 3 {
			shown = shown[:3]
		}
		return warning("missing security headers: "+strings.Join(shown, ", "), elapsed, data)
	}
	return success(elapsed, data)
}
