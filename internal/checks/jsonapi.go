package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// JSONAPICheck calls a JSON endpoint and validates status code,
// content type, required fields by dotted path, and field types.
type JSONAPICheck struct{}

func (c *JSONAPICheck) Type() string        { return "json_api" }
func (c *JSONAPICheck) DisplayName() string { return "JSON API" }
func (c *JSONAPICheck) Description() string {
	return "Calls a JSON endpoint and validates the response structure"
}

func (c *JSONAPICheck) ConfigSchema() Schema {
	return Schema{
		Type: c.Type(), Label: c.DisplayName(), Description: c.Description(),
		Fields: []Field{
			{Key: "method", Label: "HTTP Method", Type: FieldSelect, Default: "GET",
				Options: []SelectOption{
					{Value: "GET", Label: "GET"},
					{Value: "POST", Label: "POST"},
					{Value: "PUT", Label: "PUT"},
					{Value: "DELETE", Label: "DELETE"},
				}},
			{Key: "expected_status_code", Label: "Expected Status Code", Type: FieldNumber,
				Default: "200"},
			{Key: "required_fields", Label: "Required Fields", Type: FieldList,
				HelpText: "Dotted paths, e.g. data.items.0.id"},
			{Key: "field_type_checks", Label: "Field Type Checks", Type: FieldMap,
				HelpText: "Dotted path to expected type: string, number, integer, boolean, array, object, null"},
			{Key: "timeout_seconds", Label: "Timeout (seconds)", Type: FieldNumber,
				Default: "10"},
		},
	}
}

// lookupPath walks a decoded JSON document by dotted path. Numeric
// segments index into arrays.
func lookupPath(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// jsonTypeMatches checks a decoded value against the type names the
// field_type_checks config uses.
func jsonTypeMatches(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "null":
		return v == nil
	default:
		return false
	}
}

func (c *JSONAPICheck) Execute(ctx context.Context, siteURL string, config map[string]any) Outcome {
	method := cfgString(config, "method", http.MethodGet)
	expected := cfgInt(config, "expected_status_code", 200)
	requiredFields := cfgStringSlice(config, "required_fields")
	typeChecks := cfgStringMap(config, "field_type_checks")
	timeout := time.Duration(cfgInt(config, "timeout_seconds", 10)) * time.Second

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, method, siteURL, nil)
	if err != nil {
		return failure(fmt.Sprintf("invalid URL: %v", err), -1, nil)
	}
	req.Header.Set("Accept", "application/json")

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

	contentType := resp.Header.Get("Content-Type")
	data := map[string]any{
		"status_code":  resp.StatusCode,
		"content_type": contentType,
	}

	if resp.StatusCode != expected {
		return failure(fmt.Sprintf("Expected status %d, got %d", expected, resp.StatusCode),
			elapsed, data)
	}
	if !strings.Contains(contentType, "application/json") {
		return failure(fmt.Sprintf("expected JSON content type, got %q", contentType),
			elapsed, data)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return failure(fmt.Sprintf("invalid JSON body: %v", err), elapsed, data)
	}

	var problems []string
	for _, path := range requiredFields {
		if _, ok := lookupPath(doc, path); !ok {
			problems = append(problems, fmt.Sprintf("missing field %s", path))
		}
	}
	for path, want := range typeChecks {
		v, ok := lookupPath(doc, path)
		if !ok {
			problems = append(problems, fmt.Sprintf("missing field %s", path))
			continue
		}
		if !jsonTypeMatches(v, want) {
			problems = append(problems, fmt.Sprintf("field %s is not %s", path, want))
		}
	}
	if len(problems) > 0 {
		data["problems"] = problems
		return failure(strings.Join(problems, "; "), elapsed, data)
	}
	return success(elapsed, data)
}
