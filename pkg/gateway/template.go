package gateway

import "regexp"

// placeholderRe matches {{var}} placeholders, with optional surrounding
// whitespace inside the braces.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Interpolate substitutes {{var}} placeholders in a prompt body with the
// supplied variables. Placeholders with no matching variable are left
// intact so the caller can see what is missing.
func Interpolate(content string, variables map[string]string) string {
	if len(variables) == 0 {
		return content
	}
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := variables[name]; ok {
			return value
		}
		return match
	})
}

// PlaceholderNames lists the distinct placeholder names in a prompt
// body, in order of first appearance.
func PlaceholderNames(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
