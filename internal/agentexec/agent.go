// Package agentexec implements C6, the Agent Executor: spawning external
// agent command-line subprocesses, streaming and normalizing their event
// output, classifying exits, and falling back between configured agents.
// Grounded on internal/agent/cursor_cli.go's exec.CommandContext/env/
// buffer pattern and internal/agent/exec.go's mockable command-constructor
// indirection, generalized from a single non-streaming CLI wrapper into
// the closed sum of {claude, codex, gemini} the per-agent behavior in
// Design Notes calls for.
package agentexec

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"pipeline/internal/model"
)

// execCommandContext is indirected so tests can substitute a fake
// subprocess, the same seam internal/agent/exec.go provides.
var execCommandContext = exec.CommandContext

// Phase names which of the three prompt kinds an invocation is for.
type Phase string

const (
	PhaseImplementation Phase = "implementation"
	PhaseVerification   Phase = "verification"
	PhaseFix            Phase = "fix"
)

// AgentSpec is the closed sum over supported agents: the data that
// buildCommand and looksLikeRateLimit consult, kept as one plain struct per
// agent in a fixed table instead of a class hierarchy, per the design
// notes' guidance to avoid deep inheritance in favor of a tagged variant.
type AgentSpec struct {
	Identity         model.AgentIdentity
	DefaultCommand   string
	DefaultArgs      []string
	requiresIdentityToken bool // rate-limit phrase must co-occur with this agent's own identifying token
	identityToken    string
}

var specs = map[model.AgentIdentity]AgentSpec{
	model.AgentClaude: {
		Identity:       model.AgentClaude,
		DefaultCommand: "claude",
		DefaultArgs:    []string{"--print", "--output-format", "stream-json", "--verbose"},
	},
	model.AgentCodex: {
		Identity:       model.AgentCodex,
		DefaultCommand: "codex",
		DefaultArgs:    []string{"exec", "--json"},
	},
	model.AgentGemini: {
		Identity:              model.AgentGemini,
		DefaultCommand:        "gemini",
		DefaultArgs:           []string{"--output-format", "json"},
		requiresIdentityToken: true,
		identityToken:         "gemini",
	},
}

// CommandOverride lets configuration replace an agent's default binary
// name and argument vector.
type CommandOverride struct {
	Command string
	Args    []string
}

// buildCommand resolves the argv for one agent invocation. If args
// contain the literal token "{{PROMPT}}" it is substituted; otherwise the
// prompt is appended, matching the subprocess contract.
func buildCommand(identity model.AgentIdentity, prompt string, override *CommandOverride) (string, []string, error) {
	spec, ok := specs[identity]
	if !ok {
		return "", nil, fmt.Errorf("agentexec: unknown agent %q", identity)
	}

	command := spec.DefaultCommand
	args := append([]string(nil), spec.DefaultArgs...)
	if override != nil {
		if override.Command != "" {
			command = override.Command
		}
		if override.Args != nil {
			args = append([]string(nil), override.Args...)
		}
	}

	substituted := false
	for i, a := range args {
		if strings.Contains(a, "{{PROMPT}}") {
			args[i] = strings.ReplaceAll(a, "{{PROMPT}}", prompt)
			substituted = true
		}
	}
	if !substituted {
		args = append(args, prompt)
	}
	return command, args, nil
}

var (
	rateLimitPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)rate[ -]?limit`),
		regexp.MustCompile(`(?i)quota exceeded`),
		regexp.MustCompile(`(?i)usage limit`),
		regexp.MustCompile(`\b429\b`),
		regexp.MustCompile(`(?i)temporarily unavailable`),
		regexp.MustCompile(`(?i)resource_exhausted`),
	}
	unavailablePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)command not found`),
		regexp.MustCompile(`(?i)no such file or directory`),
		regexp.MustCompile(`\bENOENT\b`),
		regexp.MustCompile(`(?i)executable file not found`),
	}
)

// looksLikeRateLimit reports whether the combined output/stderr/error text
// indicates the given agent hit a rate limit. Agents whose spec requires
// an identity token (to avoid false positives from an unrelated "quota"
// mention) only match when that token also appears.
func looksLikeRateLimit(identity model.AgentIdentity, combined string) bool {
	matched := false
	for _, p := range rateLimitPatterns {
		if p.MatchString(combined) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	spec, ok := specs[identity]
	if ok && spec.requiresIdentityToken {
		return strings.Contains(strings.ToLower(combined), spec.identityToken)
	}
	return true
}

// looksUnavailable reports whether the combined text indicates the agent
// binary itself could not be run.
func looksUnavailable(combined string) bool {
	for _, p := range unavailablePatterns {
		if p.MatchString(combined) {
			return true
		}
	}
	return false
}
