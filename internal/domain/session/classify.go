package session

import (
	"regexp"
)

// SentinelMarker prefixes the exit-status line appended to commands when
// exit sentinels are enabled.
const SentinelMarker = "__PTYEXEC_EXIT__:"

var sentinelPattern = regexp.MustCompile(`__PTYEXEC_EXIT__:(-?\d+)`)

// Rule assigns Type to lines matching Pattern
type Rule struct {
	Name    string
	Type    MessageType
	Pattern *regexp.Regexp
}

// Classifier tags output lines with a message type. Rules are evaluated in
// order; the first match wins and unmatched lines are stdout.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier; with no rules it uses DefaultRules
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// DefaultRules returns the built-in classification rules
func DefaultRules() []Rule {
	return []Rule{
		{Name: "exit-sentinel", Type: messageHidden, Pattern: sentinelPattern},
		{Name: "system-tag", Type: MessageSystem, Pattern: regexp.MustCompile(`^\s*\[system\]`)},
		{Name: "bare-prompt", Type: MessageSystem, Pattern: regexp.MustCompile(`^\s*[>$#%❯]\s*$`)},
		{Name: "error-label", Type: MessageError, Pattern: regexp.MustCompile(`(?i)^\s*(error|fatal|panic|exception)(\[[^\]]*\])?\s*:`)},
		{Name: "failed-label", Type: MessageError, Pattern: regexp.MustCompile(`(?i)\bfailed:`)},
		{Name: "traceback", Type: MessageError, Pattern: regexp.MustCompile(`(?i)^\s*traceback \(most recent call last\)`)},
		{Name: "error-glyph", Type: MessageError, Pattern: regexp.MustCompile(`^\s*[❌✗✘]`)},
		{Name: "warning-label", Type: MessageStderr, Pattern: regexp.MustCompile(`(?i)^\s*(warning|warn|stderr)\s*:`)},
		{Name: "warning-glyph", Type: MessageStderr, Pattern: regexp.MustCompile(`^\s*⚠`)},
	}
}

// Classify returns the message type of line
func (c *Classifier) Classify(line string) MessageType {
	for _, r := range c.rules {
		if r.Pattern.MatchString(line) {
			return r.Type
		}
	}
	return MessageStdout
}
