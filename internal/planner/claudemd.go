package planner

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/tc/internal/util"
)

// standardsMarkers are the guidance areas CLAUDE.md must cover so a
// coding session knows how to build, test, and match the codebase.
var standardsMarkers = []string{"build", "test", "style"}

// ValidateStandards checks that agent-standards content mentions every
// required guidance area, case-insensitively.
func ValidateStandards(content string) error {
	lower := strings.ToLower(content)
	var missing []string
	for _, m := range standardsMarkers {
		if !strings.Contains(lower, m) {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("standards content does not mention: %s", strings.Join(missing, ", "))
	}
	return nil
}

// writeStandards installs the plan's claude_md as <project>/CLAUDE.md
// and reports whether it was written. Standards problems never fail an
// otherwise good plan: incomplete content is written with a warning,
// missing content and write failures are only logged.
func (p *Planner) writeStandards(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		p.logger.Warn("plan carried no agent standards, CLAUDE.md unchanged")
		return false
	}
	if err := ValidateStandards(content); err != nil {
		p.logger.Warn("agent standards look incomplete", "error", err)
	}
	if err := util.AtomicWriteFileString(p.paths.StandardsPath(), content+"\n", 0o644); err != nil {
		p.logger.Warn("write CLAUDE.md", "error", err)
		return false
	}
	return true
}
