// Package templates provides embedded prompt templates.
package templates

import "embed"

// Prompts contains the embedded brief and planning templates. Variables
// use the {{NAME}} form; optional sections use {{#if NAME}}...{{/if}}.
//
//go:embed prompts/*.md
var Prompts embed.FS
