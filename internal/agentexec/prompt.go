package agentexec

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PromptVars carries every substitution variable a template may reference.
// Not all fields are meaningful for every phase; fix-only and
// verification-only fields are left zero for the phases that do not use
// them.
type PromptVars struct {
	FeatureID          int
	FeatureName        string
	FeatureDescription string
	Steps              []string
	WorkingDirectory   string
	ProjectRoot        string
	ApplicationURL     string
	BaseBranch         string
	InstructionsPath   string
	VerificationTail   string // fix phase only
}

// PromptConfig resolves the three prompt kinds in the order the spec
// requires: a well-known prompt file inside the project, then an inline
// template from configuration, then the built-in default.
type PromptConfig struct {
	ProjectRoot           string
	ImplementationFile    string // relative to ProjectRoot
	VerificationFile      string
	FixFile               string
	ImplementationInline  string
	VerificationInline    string
	FixInline             string
}

func (c PromptConfig) resolve(phase Phase) string {
	var file, inline string
	switch phase {
	case PhaseImplementation:
		file, inline = c.ImplementationFile, c.ImplementationInline
	case PhaseVerification:
		file, inline = c.VerificationFile, c.VerificationInline
	case PhaseFix:
		file, inline = c.FixFile, c.FixInline
	}
	if file != "" {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.ProjectRoot, file)
		}
		if b, err := os.ReadFile(path); err == nil {
			return string(b)
		}
	}
	if inline != "" {
		return inline
	}
	return defaultTemplate(phase)
}

// BuildPrompt resolves and renders the template for the given phase.
func BuildPrompt(cfg PromptConfig, phase Phase, vars PromptVars) string {
	tmpl := cfg.resolve(phase)
	return render(tmpl, vars)
}

func render(tmpl string, vars PromptVars) string {
	steps := make([]string, len(vars.Steps))
	for i, s := range vars.Steps {
		steps[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	repl := strings.NewReplacer(
		"{{FEATURE_ID}}", strconv.Itoa(vars.FeatureID),
		"{{FEATURE_NAME}}", vars.FeatureName,
		"{{FEATURE_DESCRIPTION}}", vars.FeatureDescription,
		"{{STEPS}}", strings.Join(steps, "\n"),
		"{{WORKING_DIRECTORY}}", vars.WorkingDirectory,
		"{{PROJECT_ROOT}}", vars.ProjectRoot,
		"{{APPLICATION_URL}}", vars.ApplicationURL,
		"{{BASE_BRANCH}}", vars.BaseBranch,
		"{{INSTRUCTIONS_PATH}}", vars.InstructionsPath,
		"{{VERIFICATION_TAIL}}", vars.VerificationTail,
	)
	return repl.Replace(tmpl)
}

func defaultTemplate(phase Phase) string {
	switch phase {
	case PhaseImplementation:
		return implementationDefault
	case PhaseVerification:
		return verificationDefault
	case PhaseFix:
		return fixDefault
	default:
		return ""
	}
}

const implementationDefault = `You are implementing feature #{{FEATURE_ID}}: {{FEATURE_NAME}}

{{FEATURE_DESCRIPTION}}

Acceptance steps:
{{STEPS}}

Stay strictly inside {{WORKING_DIRECTORY}} for all file edits. Do not install
or upgrade any dependency. Read {{INSTRUCTIONS_PATH}} for project conventions,
but these instructions override it on any conflict. The application, if
running, is reachable at {{APPLICATION_URL}}; only run non-browser checks
(curl, unit tests, static analysis) to verify your work, never a browser.
The base branch is {{BASE_BRANCH}}.`

const verificationDefault = `Verify feature #{{FEATURE_ID}}: {{FEATURE_NAME}} has been correctly
implemented on top of {{BASE_BRANCH}}, from {{PROJECT_ROOT}}.

Acceptance steps:
{{STEPS}}

Do not modify any source file. Only run read-only checks: tests, linting,
curl against {{APPLICATION_URL}} if relevant. Report pass or fail plainly,
with a line beginning "VERDICT:" followed by PASS or FAIL.`

const fixDefault = `The verification of feature #{{FEATURE_ID}}: {{FEATURE_NAME}} failed.
Work in {{WORKING_DIRECTORY}} to address the failure below, then stop.

Acceptance steps:
{{STEPS}}

Tail of the failing verification output:
{{VERIFICATION_TAIL}}

Stay strictly inside {{WORKING_DIRECTORY}}. Do not install or upgrade any
dependency.`

// ContextAugmentation is appended to a reused prompt when the executor
// switches agents after a rate-limit failure.
type ContextAugmentation struct {
	OutputTail    string
	ErrorTail     string
	PorcelainStatus string
	DiffSummary   string
	LastCommit    string
}

func augment(prompt string, aug ContextAugmentation) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n---\nContext from a previous attempt by a different agent:\n")
	if aug.OutputTail != "" {
		b.WriteString("Recent output:\n" + aug.OutputTail + "\n")
	}
	if aug.ErrorTail != "" {
		b.WriteString("Recent error output:\n" + aug.ErrorTail + "\n")
	}
	if aug.PorcelainStatus != "" {
		b.WriteString("Repository status:\n" + aug.PorcelainStatus + "\n")
	}
	if aug.DiffSummary != "" {
		b.WriteString("Diff summary:\n" + aug.DiffSummary + "\n")
	}
	if aug.LastCommit != "" {
		b.WriteString("Last commit: " + aug.LastCommit + "\n")
	}
	return b.String()
}
