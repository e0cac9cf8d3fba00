package action

import (
	"fmt"
	"net/url"
	"time"
)

// StringParam returns params[key] when it is a non-empty string.
func StringParam(params map[string]interface{}, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok && s != ""
}

// URLParam returns params[key] as an absolute http(s) URL.
func URLParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := StringParam(params, key)
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return raw, nil
}

// HeadersParam converts params[key] (a YAML mapping) into string headers.
func HeadersParam(params map[string]interface{}, key string) (map[string]string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	out := make(map[string]string)
	switch m := raw.(type) {
	case map[string]interface{}:
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	default:
		return nil, fmt.Errorf("%s must be a mapping, got %T", key, raw)
	}
	return out, nil
}

// DurationMsParam reads an integer millisecond param, falling back to def.
func DurationMsParam(params map[string]interface{}, key string, def time.Duration) (time.Duration, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	var n float64
	switch v := raw.(type) {
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case float64:
		n = v
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return time.Duration(n) * time.Millisecond, nil
}
