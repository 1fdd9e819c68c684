package session

import (
	"strconv"
	"strings"
)

// Verdict is the outcome proposed by a completion rule
type Verdict struct {
	Rule     string
	Success  bool
	ExitCode *int
	// Authoritative verdicts are not second-guessed by error lines in the output
	Authoritative bool
}

// CompletionRule inspects one output line and may declare the command done
type CompletionRule interface {
	Name() string
	Match(line string) (Verdict, bool)
}

// Detector evaluates completion rules in priority order. A rule earlier in the
// list wins over a later one even if the later one matched an earlier line.
type Detector struct {
	rules []CompletionRule
}

// NewDetector creates a detector from rules in priority order
func NewDetector(rules ...CompletionRule) *Detector {
	return &Detector{rules: rules}
}

// DefaultDetector checks exit sentinels, then failure phrases, then
// completion phrases.
func DefaultDetector(completion, failure []string) *Detector {
	return NewDetector(
		SentinelRule(),
		PhraseRule("failure-phrase", failure, false),
		PhraseRule("completion-phrase", completion, true),
	)
}

// DefaultCompletionPhrases are line prefixes that mark a finished turn
func DefaultCompletionPhrases() []string {
	return []string{"Command completed", "Done.", "Task completed"}
}

// DefaultFailurePhrases are line prefixes that mark a failed turn
func DefaultFailurePhrases() []string {
	return []string{"Command failed", "Task failed"}
}

// Evaluate returns the verdict of the highest-priority rule matching any line
func (d *Detector) Evaluate(lines []string) (Verdict, bool) {
	if d == nil {
		return Verdict{}, false
	}
	for _, rule := range d.rules {
		for _, line := range lines {
			if v, ok := rule.Match(line); ok {
				return v, true
			}
		}
	}
	return Verdict{}, false
}

type sentinelRule struct{}

// SentinelRule matches the exit-status line written by the sentinel suffix.
// A zero status completes the command, anything else fails it.
func SentinelRule() CompletionRule {
	return sentinelRule{}
}

func (sentinelRule) Name() string { return "exit-sentinel" }

func (sentinelRule) Match(line string) (Verdict, bool) {
	m := sentinelPattern.FindStringSubmatch(line)
	if m == nil {
		return Verdict{}, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return Verdict{}, false
	}
	return Verdict{
		Rule:          "exit-sentinel",
		Success:       code == 0,
		ExitCode:      &code,
		Authoritative: true,
	}, true
}

type phraseRule struct {
	name    string
	phrases []string
	success bool
}

// PhraseRule matches lines whose trimmed text starts with one of phrases
func PhraseRule(name string, phrases []string, success bool) CompletionRule {
	return phraseRule{name: name, phrases: phrases, success: success}
}

func (r phraseRule) Name() string { return r.name }

func (r phraseRule) Match(line string) (Verdict, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Verdict{}, false
	}
	for _, p := range r.phrases {
		if p != "" && strings.HasPrefix(trimmed, p) {
			return Verdict{Rule: r.name, Success: r.success}, true
		}
	}
	return Verdict{}, false
}
