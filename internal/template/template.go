// Package template implements {{name}} placeholder extraction and
// substitution for email templates.
//
// Rendering is total: a placeholder with no bound value is left verbatim in
// the output rather than raising an error, so rendering the same template
// against the same bindings is always reproducible.
package template

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Placeholders returns the deduplicated placeholder names found in the
// template, in first-occurrence order.
func Placeholders(content string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var names []string
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Render substitutes every {{name}} occurrence with its bound value.
// Unbound placeholders pass through unchanged.
func Render(content string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return token
	})
}
