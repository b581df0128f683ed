package automation

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// externalSourcePattern matches wording that implies the task reads from
// outside the workspace.
var externalSourcePattern = regexp.MustCompile(`(?i)\b(` + strings.Join([]string{
	`news`,
	`headlines?`,
	`latest`,
	`trending`,
	`web`,
	`internet`,
	`online`,
	`google`,
	`search (?:for|the)`,
	`look up`,
	`rss`,
	`atom`,
	`feeds?`,
	`blogs?`,
	`articles?`,
	`press releases?`,
	`hacker ?news`,
	`reddit`,
	`arxiv`,
	`websites?`,
}, "|") + `)\b|https?://`)

// InferExternalSource guesses whether a task without an explicit spec needs
// web or feed retrieval, from the wording of its title and prompt.
func InferExternalSource(title, prompt string) bool {
	return externalSourcePattern.MatchString(title) || externalSourcePattern.MatchString(prompt)
}

// NormalizeSpec returns the fully defaulted spec of task. Tasks created
// without a spec get a mixed source when their wording implies external
// retrieval and a workspace source otherwise.
func NormalizeSpec(task *models.Automation) models.TaskSpec {
	if task.HasSpec {
		return task.Spec.Normalized()
	}
	var spec models.TaskSpec
	if InferExternalSource(task.Title, task.Prompt) {
		spec.Source.Mode = models.SourceMixed
	}
	return spec.Normalized()
}

// RequiresExternalSource reports whether running task needs a web tool.
func RequiresExternalSource(task *models.Automation) bool {
	return NormalizeSpec(task).RequiresExternalSource()
}
