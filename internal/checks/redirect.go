package checks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RedirectCheck follows the redirect chain hop by hop and validates the
// final destination.
type RedirectCheck struct{}

func (c *RedirectCheck) Type() string        { return "redirect" }
func (c *RedirectCheck) DisplayName() string { return "Redirect Chain" }
func (c *RedirectCheck) Description() string {
	return "Follows redirects manually and validates the final destination"
}

func (c *RedirectCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "expected_final_url", Label: "Expected Final URL", Type: FieldText,
				HelpText: "Compared case-insensitively, ignoring a trailing slash"},
			{Key: "require_https", Label: "Require HTTPS Destination", Type: FieldCheckbox},
			{Key: "max_redirects", Label: "Max Redirects", Type: FieldNumber, Default: "10"},
			{Key: "warn_on_redirect_count", Label: "Warn Above Hop Count", Type: FieldNumber,
				Default: "3"},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// normalizeFinalURL lowers the URL and strips a trailing slash so that
// comparison tolerates cosmetic differences.
func normalizeFinalURL(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

func (c *RedirectCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	expectedFinal := cfgString(config, "expected_final_url", "")
	requireHTTPS := cfgBool(config, "require_https", false)
	maxRedirects := cfgInt(config, "max_redirects", 10)
	warnAbove := cfgInt(config, "warn_on_redirect_count", 3)
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	current := siteURL
	visited := map[string]bool{}
	var chain []map[string]any
	var finalStatus int
	start := time.Now()

	for hop := 0; ; hop++ {
		if visited[current] {
			return failure(fmt.Sprintf("redirect loop detected at %s", current),
				int(time.Since(start).Milliseconds()),
				map[string]any{"redirect_chain": chain})
		}
		visited[current] = true

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return failure(fmt.Sprintf("invalid URL %q: %v", current, err), -1, nil)
		}
		resp, err := client.Do(req)
		if err != nil {
			return failure(fmt.Sprintf("request failed: %v", err),
				int(time.Since(start).Milliseconds()),
				map[string]any{"redirect_chain": chain})
		}
		resp.Body.Close()
		finalStatus = resp.StatusCode

		if !isRedirectStatus(resp.StatusCode) {
			break
		}
		if hop >= maxRedirects {
			return failure(fmt.Sprintf("more than %d redirects", maxRedirects),
				int(time.Since(start).Milliseconds()),
				map[string]any{"redirect_chain": chain})
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return failure(fmt.Sprintf("redirect from %s has no Location header", current),
				int(time.Since(start).Milliseconds()),
				map[string]any{"redirect_chain": chain})
		}
		base, _ := url.Parse(current)
		next, err := base.Parse(location)
		if err != nil {
			return failure(fmt.Sprintf("invalid Location %q: %v", location, err),
				int(time.Since(start).Milliseconds()),
				map[string]any{"redirect_chain": chain})
		}
		chain = append(chain, map[string]any{
			"from": current, "to": next.String(), "status_code": resp.StatusCode,
		})
		current = next.String()
	}
	elapsed := int(time.Since(start).Milliseconds())

	data := map[string]any{
		"final_url":         current,
		"final_status_code": finalStatus,
		"redirect_count":    len(chain),
		"redirect_chain":    chain,
	}

	if finalStatus >= 400 {
		return failure(fmt.Sprintf("final URL returned status %d", finalStatus), elapsed, data)
	}
	if requireHTTPS && !strings.HasPrefix(strings.ToLower(current), "https://") {
		return failure(fmt.Sprintf("final URL is not HTTPS: %s", current), elapsed, data)
	}
	if expectedFinal != "" && normalizeFinalURL(current) != normalizeFinalURL(expectedFinal) {
		return failure(fmt.Sprintf("final URL %s does not match expected %s", current, expectedFinal),
			elapsed, data)
	}
	if len(chain) > warnAbove {
		return warning(fmt.Sprintf("%d redirects before reaching the final URL", len(chain)),
			elapsed, data)
	}
	return success(elapsed, data)
}
