package bootstrap

import (
	"path/filepath"
	"regexp"
	"strings"
)

// envCommandPrefix marks env checks; the rest of the command is the
// variable name to look up in .env.
const envCommandPrefix = "env_check:"

// Builtins are the checks every project needs regardless of what
// bootstrap.md says: the Agent binary, tmux for the panes, and git for
// the working tree.
func Builtins(agentBin string) []Check {
	return []Check{
		{Name: filepath.Base(agentBin), Kind: CheckTool, Command: agentBin + " --version"},
		{Name: "tmux", Kind: CheckTool, Command: "tmux -V"},
		{Name: "git", Kind: CheckTool, Command: "git status"},
	}
}

// Parse extracts checks from bootstrap.md content: tool rows from
// tables with Tool and Verify columns, credential probes from
// **Verify:** `cmd` lines, and variable checks from sections that
// describe the .env file. The builtins are appended last. Empty
// content yields exactly the builtins.
func Parse(content, agentBin string) []Check {
	var checks []Check
	checks = append(checks, parseToolTables(content)...)
	checks = append(checks, parseCredentialLines(content)...)
	checks = append(checks, parseEnvSections(content)...)
	return append(checks, Builtins(agentBin)...)
}

// tableSeparator matches markdown separator rows like |----|:---:|.
var tableSeparator = regexp.MustCompile(`^\|[\s\-:|]+\|$`)

// parseToolTables walks markdown tables whose header names both a Tool
// and a Verify column. Each data row with a runnable verify cell
// becomes a tool check; "-" and empty cells mean the row has nothing
// to verify.
func parseToolTables(content string) []Check {
	var checks []Check
	inTable := false
	var toolIdx, verifyIdx, headerWidth int

	for _, line := range strings.Split(content, "\n") {
		row := strings.TrimSpace(line)

		if !inTable && strings.Contains(row, "|") {
			if ti, vi, width, ok := headerIndices(row); ok {
				toolIdx, verifyIdx, headerWidth = ti, vi, width
				inTable = true
				continue
			}
		}
		if !inTable {
			continue
		}
		switch {
		case tableSeparator.MatchString(row):
			// divider between header and data
		case strings.Contains(row, "|"):
			cells := splitRow(row)
			if len(cells) < headerWidth {
				continue
			}
			command := stripMarkdown(cells[verifyIdx])
			if command == "" || command == "-" {
				continue
			}
			name := strings.ToLower(stripMarkdown(cells[toolIdx]))
			checks = append(checks, Check{
				Name:    strings.ReplaceAll(name, " ", "_"),
				Kind:    CheckTool,
				Command: command,
			})
		case row != "":
			inTable = false
		}
	}
	return checks
}

// headerIndices reports the Tool and Verify column positions when the
// row is a prerequisites table header.
func headerIndices(row string) (tool, verify, width int, ok bool) {
	cells := splitRow(row)
	tool, verify = -1, -1
	for i, cell := range cells {
		switch strings.ToLower(cell) {
		case "tool":
			tool = i
		case "verify":
			verify = i
		}
	}
	if tool < 0 || verify < 0 {
		return 0, 0, 0, false
	}
	return tool, verify, len(cells), true
}

// splitRow breaks a markdown table row into trimmed, non-empty cells.
func splitRow(row string) []string {
	var cells []string
	for _, cell := range strings.Split(row, "|") {
		if cell = strings.TrimSpace(cell); cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}

// stripMarkdown drops the inline formatting bootstrap.md cells carry.
func stripMarkdown(text string) string {
	text = strings.Trim(text, "`")
	text = strings.ReplaceAll(text, "**", "")
	return strings.TrimSpace(text)
}

// verifyLine matches credential probes written as **Verify:** `cmd`.
var verifyLine = regexp.MustCompile("\\*\\*Verify:\\*\\*\\s*`([^`]+)`")

func parseCredentialLines(content string) []Check {
	var checks []Check
	for _, m := range verifyLine.FindAllStringSubmatch(content, -1) {
		command := strings.TrimSpace(m[1])
		checks = append(checks, Check{
			Name:    credentialName(command),
			Kind:    CheckCredential,
			Command: command,
		})
	}
	return checks
}

// credentialName derives a stable name from the probe's executable, so
// `gh auth status` and `/usr/bin/gh auth status` both record as
// credential_gh.
func credentialName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "credential_check"
	}
	return "credential_" + filepath.Base(fields[0])
}

// envVar matches backticked ALL_CAPS identifiers.
var envVar = regexp.MustCompile("`([A-Z][A-Z0-9_]+)`")

// envSectionKeywords, together with a ".env" mention, mark a line as
// opening an environment-variable section.
var envSectionKeywords = []string{"populate", "create", "variable", "environment", "config"}

// parseEnvSections collects variable names from prose describing the
// .env file. A section opens at a line that mentions .env alongside
// one of the keywords and closes at the next heading; every backticked
// ALL_CAPS identifier inside becomes an env check.
func parseEnvSections(content string) []Check {
	var checks []Check
	inSection := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, ".env") && containsAny(lower, envSectionKeywords) {
			inSection = true
			continue
		}
		if inSection && strings.HasPrefix(trimmed, "#") {
			inSection = false
		}
		if !inSection {
			continue
		}
		for _, m := range envVar.FindAllStringSubmatch(line, -1) {
			checks = append(checks, Check{
				Name:    "env_" + strings.ToLower(m[1]),
				Kind:    CheckEnv,
				Command: envCommandPrefix + m[1],
			})
		}
	}
	return checks
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
