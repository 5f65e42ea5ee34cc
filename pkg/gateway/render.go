package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Render formats for context delivery.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

// RenderContext renders stored context content in the requested format.
// Content that parses as JSON is re-rendered; anything else passes
// through untouched (plain-text contexts are legal).
func RenderContext(content, format string) (string, error) {
	if format == "" {
		format = FormatJSON
	}

	var data any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		// Not structured; deliver verbatim regardless of format.
		return content, nil
	}

	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("rendering json: %w", err)
		}
		return string(out), nil
	case FormatYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("rendering yaml: %w", err)
		}
		return string(out), nil
	case FormatText:
		return flattenText(data), nil
	default:
		return "", NewError(KindInvalidInput, "unsupported format %q (want json, yaml, or text)", format)
	}
}

// flattenText renders structured data as sorted "key.path: value" lines.
func flattenText(data any) string {
	entries := make(map[string]string)
	flattenInto(entries, "", data)

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(entries[k])
		b.WriteString("\n")
	}
	return b.String()
}

func flattenInto(entries map[string]string, prefix string, data any) {
	switch v := data.(type) {
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(entries, key, child)
		}
	case []any:
		for i, child := range v {
			flattenInto(entries, fmt.Sprintf("%s[%d]", prefix, i), child)
		}
	default:
		entries[prefix] = fmt.Sprintf("%v", v)
	}
}

// MergeContexts shallow-merges structured context payloads. Later
// entries override same-key fields from earlier ones at the top level.
func MergeContexts(payloads []string) (map[string]any, error) {
	merged := make(map[string]any)
	for i, payload := range payloads {
		var obj map[string]any
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			return nil, NewError(KindInvalidInput, "context at position %d is not a structured object", i)
		}
		for k, v := range obj {
			merged[k] = v
		}
	}
	return merged, nil
}
