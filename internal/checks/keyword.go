package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// KeywordCheck fetches the page body and verifies required keywords are
// present and forbidden ones absent.
type KeywordCheck struct{}

func (c *KeywordCheck) Type() string        { return "keyword" }
func (c *KeywordCheck) DisplayName() string { return "Page Keywords" }
func (c *KeywordCheck) Description() string {
	return "Searches the response body for required and forbidden keywords"
}

func (c *KeywordCheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "keywords_present", Label: "Required Keywords", Type: FieldList,
				HelpText: "All of these must appear in the body"},
			{Key: "keywords_absent", Label: "Forbidden Keywords", Type: FieldList,
				HelpText: "None of these may appear in the body"},
			{Key: "use_regex", Label: "Treat Keywords as Regex", Type: FieldCheckbox},
			{Key: "case_sensitive", Label: "Case Sensitive", Type: FieldCheckbox},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

func (c *KeywordCheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	present := cfgStringSlice(config, "keywords_present")
	absent := cfgStringSlice(config, "keywords_absent")
	useRegex := cfgBool(config, "use_regex", false)
	caseSensitive := cfgBool(config, "case_sensitive", false)
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
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
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return failure(fmt.Sprintf("reading body: %v", err), elapsed, nil)
	}
	body := string(raw)

	match := func(keyword string) (bool, error) {
		if useRegex {
			pattern := keyword
			if !caseSensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("invalid regex %q: %w", keyword, err)
			}
			return re.MatchString(body), nil
		}
		if caseSensitive {
			return strings.Contains(body, keyword), nil
		}
		return strings.Contains(strings.ToLower(body), strings.ToLower(keyword)), nil
	}

	var missing, forbidden []string
	for _, kw := range present {
		found, err := match(kw)
		if err != nil {
			return failure(err.Error(), elapsed, nil)
		}
		if !found {
			missing = append(missing, kw)
		}
	}
	for _, kw := range absent {
		found, err := match(kw)
		if err != nil {
			return failure(err.Error(), elapsed, nil)
		}
		if found {
			forbidden = append(forbidden, kw)
		}
	}

	data := map[string]any{
		"status_code":      resp.StatusCode,
		"missing_keywords": missing,
		"found_forbidden":  forbidden,
	}
	if len(missing) > 0 {
		return failure("Missing keywords: "+strings.Join(missing, ", "), elapsed, data)
	}
	if len(forbidden) > 0 {
		return failure("Found forbidden keywords: "+strings.Join(forbidden, ", "), elapsed, data)
	}
	return success(elapsed, data)
}
