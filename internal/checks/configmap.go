package checks

import (
	"fmt"
	"net/url"
	"strings"
)

// Configuration maps come from JSON columns, so numbers arrive as
// float64 and lists as []any. These helpers normalize the common cases
// and fall back to a default when the key is absent or the wrong shape.

func cfgString(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func cfgInt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func cfgBool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func cfgStringSlice(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func cfgIntSlice(m map[string]any, key string) []int {
	switch v := m[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			}
		}
		return out
	}
	return nil
}

func cfgStringMap(m map[string]any, key string) map[string]string {
	switch v := m[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

// hostFromURL extracts the bare hostname from a site URL, stripping any
// scheme, port, path and credentials. A bare hostname passes through.
func hostFromURL(siteURL string) (string, error) {
	raw := strings.TrimSpace(siteURL)
	if raw == "" {
		return "", fmt.Errorf("empty site URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse site URL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no hostname in URL %q", siteURL)
	}
	return host, nil
}
