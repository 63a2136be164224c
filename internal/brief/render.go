package brief

import (
	"regexp"
	"sort"
)

// Vars is the substitution set for one render.
type Vars map[string]string

var (
	varPattern  = regexp.MustCompile(`\{\{([A-Z_][A-Z0-9_]*)\}\}`)
	condPattern = regexp.MustCompile(`(?s)\{\{#if ([A-Z_][A-Z0-9_]*)\}\}(.*?)\{\{/if\}\}`)
)

// Render applies variable substitution to a template. Variables use the
// {{VAR}} form; {{#if VAR}}...{{/if}} blocks are kept only when VAR is
// set and non-empty. Missing variables render as empty strings.
func Render(template string, vars Vars) string {
	result := processConditionals(template, vars)
	return varPattern.ReplaceAllStringFunc(result, func(match string) string {
		name := match[2 : len(match)-2]
		return vars[name]
	})
}

// RenderStrict is Render plus a report of variables the template needs
// but vars does not define. Conditionally removed blocks do not count.
func RenderStrict(template string, vars Vars) (string, []string) {
	result := processConditionals(template, vars)

	var missing []string
	for _, match := range varPattern.FindAllStringSubmatch(result, -1) {
		name := match[1]
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	result = varPattern.ReplaceAllStringFunc(result, func(match string) string {
		name := match[2 : len(match)-2]
		return vars[name]
	})
	return result, dedupe(missing)
}

// processConditionals keeps {{#if VAR}} blocks whose variable is set and
// non-empty and removes the rest.
func processConditionals(content string, vars Vars) string {
	return condPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := condPattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return ""
		}
		if value, ok := vars[sub[1]]; ok && value != "" {
			return sub[2]
		}
		return ""
	})
}

// ExtractVariables lists the distinct {{VAR}} names a template uses,
// including those inside conditional blocks, sorted.
func ExtractVariables(template string) []string {
	var names []string
	for _, match := range varPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, match[1])
	}
	for _, match := range condPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, match[1])
	}
	return dedupe(names)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
