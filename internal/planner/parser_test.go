package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tc/internal/core"
)

const minimalPlan = `{
  "phases": [
    {
      "name": "Foundation",
      "description": "core layout",
      "tasks": [
        {"name": "set up repo", "kind": "coding", "description": "init the module", "depends_on": []},
        {"name": "add config", "kind": "coding", "description": "config loader", "depends_on": [0]}
      ]
    }
  ],
  "claude_md": "Build with make. Test with go test. Match the existing style."
}`

func TestExtractJSONFencedBlock(t *testing.T) {
	response := "Here is the plan you asked for:\n\n```json\n" + minimalPlan + "\n```\n\nLet me know!"
	doc, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, minimalPlan, doc)
}

func TestExtractJSONBareFence(t *testing.T) {
	response := "```\n" + minimalPlan + "\n```"
	doc, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, minimalPlan, doc)
}

func TestExtractJSONSkipsNonObjectFences(t *testing.T) {
	response := "First run this:\n```\ngo test ./...\n```\nThen the plan:\n```json\n" + minimalPlan + "\n```"
	doc, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, minimalPlan, doc)
}

func TestExtractJSONBraceMatching(t *testing.T) {
	response := "No fences today. " + minimalPlan + " That is all."
	doc, err := ExtractJSON(response)
	require.NoError(t, err)
	assert.Equal(t, minimalPlan, doc)
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	raw := `{"phases": [{"name": "Templating", "tasks": [{"name": "render {{vars}}", "description": "handle } and \" in text"}]}]}`
	doc, err := ExtractJSON("prefix " + raw + " suffix")
	require.NoError(t, err)
	assert.Equal(t, raw, doc)
}

func TestExtractJSONNoDocument(t *testing.T) {
	_, err := ExtractJSON("I could not produce a plan, sorry.")
	assert.ErrorContains(t, err, "no JSON object")
}

func TestExtractJSONUnterminated(t *testing.T) {
	_, err := ExtractJSON(`{"phases": [{"name": "cut off`)
	assert.ErrorContains(t, err, "unterminated")
}

func TestParsePlanFull(t *testing.T) {
	plan, err := ParsePlan(minimalPlan)
	require.NoError(t, err)

	require.Len(t, plan.Phases, 1)
	assert.Equal(t, "Foundation", plan.Phases[0].Name)
	assert.Equal(t, "core layout", plan.Phases[0].Description)
	assert.Equal(t, 2, plan.TaskCount())

	tasks := plan.Phases[0].Tasks
	assert.Equal(t, "set up repo", tasks[0].Name)
	assert.Equal(t, core.KindCoding, tasks[0].Kind)
	assert.Empty(t, tasks[0].DependsOn)
	assert.Equal(t, []int{0}, tasks[1].DependsOn)
	assert.Contains(t, plan.ClaudeMD, "Build with make")
}

func TestParsePlanCrossPhaseDependencies(t *testing.T) {
	doc := `{
	  "phases": [
	    {"name": "One", "tasks": [{"name": "a"}, {"name": "b"}]},
	    {"name": "Two", "tasks": [{"name": "c", "depends_on": [0, 1], "timeout_secs": 900}]}
	  ]
	}`
	plan, err := ParsePlan(doc)
	require.NoError(t, err)
	require.Len(t, plan.Phases, 2)
	assert.Equal(t, []int{0, 1}, plan.Phases[1].Tasks[0].DependsOn)
	assert.Equal(t, 900, plan.Phases[1].Tasks[0].TimeoutSecs)
}

func TestParsePlanDefaults(t *testing.T) {
	plan, err := ParsePlan(`{"phases": [{"tasks": [{"description": "just do it"}]}]}`)
	require.NoError(t, err)

	assert.Equal(t, "Unnamed Phase", plan.Phases[0].Name)
	task := plan.Phases[0].Tasks[0]
	assert.Equal(t, "Unnamed Task", task.Name)
	assert.Equal(t, core.KindCoding, task.Kind)
	assert.Equal(t, 0, task.TimeoutSecs)
	assert.Empty(t, plan.ClaudeMD)
}

func TestParsePlanNegativeTimeoutClamped(t *testing.T) {
	plan, err := ParsePlan(`{"phases": [{"tasks": [{"name": "a", "timeout_secs": -5}]}]}`)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Phases[0].Tasks[0].TimeoutSecs)
}

func TestParsePlanRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"not json", `{"phases": [}`, "not valid JSON"},
		{"phases missing", `{"claude_md": "x"}`, `no "phases" array`},
		{"phases not array", `{"phases": {"name": "One"}}`, `no "phases" array`},
		{"no phases", `{"phases": []}`, "no phases"},
		{"no tasks", `{"phases": [{"name": "One", "tasks": []}]}`, "no tasks"},
		{"empty phase", `{"phases": [{"name": "One", "tasks": [{"name": "a"}]}, {"name": "Two", "tasks": []}]}`, "has no tasks"},
		{"bad kind", `{"phases": [{"tasks": [{"name": "a", "kind": "deploy"}]}]}`, `unknown kind "deploy"`},
		{"dep out of range", `{"phases": [{"tasks": [{"name": "a", "depends_on": [5]}]}]}`, "nonexistent task 5"},
		{"negative dep", `{"phases": [{"tasks": [{"name": "a", "depends_on": [-1]}]}]}`, "nonexistent task -1"},
		{"self dep", `{"phases": [{"tasks": [{"name": "a", "depends_on": [0]}]}]}`, "does not come before"},
		{"forward dep", `{"phases": [{"tasks": [{"name": "a", "depends_on": [1]}, {"name": "b"}]}]}`, "does not come before"},
		{"named dep", `{"phases": [{"tasks": [{"name": "a"}, {"name": "b", "depends_on": ["a"]}]}]}`, "non-numeric dependency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePlan(tc.doc)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestParsePlanManyPhases(t *testing.T) {
	doc := `{"phases": [`
	for i := 0; i < 4; i++ {
		if i > 0 {
			doc += ","
		}
		doc += fmt.Sprintf(`{"name": "Phase %d", "tasks": [{"name": "task %d"}]}`, i+1, i)
	}
	doc += `]}`

	plan, err := ParsePlan(doc)
	require.NoError(t, err)
	assert.Len(t, plan.Phases, 4)
	assert.Equal(t, 4, plan.TaskCount())
}
