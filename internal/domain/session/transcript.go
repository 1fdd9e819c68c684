package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

type line struct {
	typ  MessageType
	text string
	at   time.Time
}

// transcript turns the raw PTY stream of one command into classified lines.
// It is not safe for concurrent use; Command guards it.
type transcript struct {
	classifier *Classifier
	echo       string
	echoDone   bool
	lines      []line
	pending    string
	pendingAt  time.Time
	bytes      int
	final      bool
}

func newTranscript(c *Classifier) *transcript {
	return &transcript{classifier: c, echoDone: true}
}

// expectEcho drops the terminal's echo of s from the output
func (t *transcript) expectEcho(s string) {
	t.echo = strings.TrimSpace(s)
	t.echoDone = t.echo == ""
}

// feed appends raw output and returns the cleaned text of every line it
// completed, followed by the current partial line if any.
func (t *transcript) feed(chunk []byte, now time.Time) []string {
	t.bytes += len(chunk)
	if t.pending == "" {
		t.pendingAt = now
	}

	parts := strings.Split(t.pending+string(chunk), "\n")
	t.pending = parts[len(parts)-1]

	var out []string
	for i, raw := range parts[:len(parts)-1] {
		at := now
		if i == 0 {
			at = t.pendingAt
		}
		if text, ok := t.accept(cleanLine(raw), at); ok {
			out = append(out, text)
		}
	}
	if len(parts) > 1 {
		t.pendingAt = now
	}
	if p := cleanLine(t.pending); p != "" && !t.isEcho(p) {
		out = append(out, p)
	}
	return out
}

func (t *transcript) accept(text string, at time.Time) (string, bool) {
	if t.isEcho(text) {
		t.echoDone = true
		return "", false
	}
	if strings.TrimSpace(text) != "" {
		t.echoDone = true
	}
	if typ := t.classifier.Classify(text); typ != messageHidden {
		t.lines = append(t.lines, line{typ: typ, text: text, at: at})
	}
	return text, true
}

func (t *transcript) isEcho(text string) bool {
	if t.echoDone {
		return false
	}
	trimmed := strings.TrimSpace(text)
	return trimmed != "" && strings.HasSuffix(trimmed, t.echo)
}

// note records a message produced by the session rather than the process
func (t *transcript) note(typ MessageType, text string, now time.Time) {
	t.lines = append(t.lines, line{typ: typ, text: text, at: now})
}

// finalize flushes the partial line; later messages are never partial
func (t *transcript) finalize() {
	if t.final {
		return
	}
	if p := cleanLine(t.pending); p != "" {
		t.accept(p, t.pendingAt)
	}
	t.pending = ""
	t.final = true
}

func (t *transcript) messages() []OutputMessage {
	type group struct {
		typ   MessageType
		at    time.Time
		lines []string
	}
	var groups []group
	add := func(l line) {
		if len(groups) == 0 && strings.TrimSpace(l.text) == "" {
			return
		}
		if n := len(groups); n > 0 && groups[n-1].typ == l.typ {
			groups[n-1].lines = append(groups[n-1].lines, l.text)
			return
		}
		groups = append(groups, group{typ: l.typ, at: l.at, lines: []string{l.text}})
	}

	for _, l := range t.lines {
		add(l)
	}
	if !t.final {
		if p := cleanLine(t.pending); p != "" && !t.isEcho(p) {
			if typ := t.classifier.Classify(p); typ != messageHidden {
				add(line{typ: typ, text: p, at: t.pendingAt})
			}
		}
	}

	msgs := make([]OutputMessage, 0, len(groups))
	for _, g := range groups {
		msgs = append(msgs, OutputMessage{
			Type:      g.typ,
			Content:   strings.Join(g.lines, "\n"),
			Timestamp: g.at,
		})
	}
	if !t.final && len(msgs) > 0 {
		msgs[len(msgs)-1].Partial = true
	}
	return msgs
}

func (t *transcript) hasErrors() bool {
	for _, l := range t.lines {
		if l.typ == MessageError {
			return true
		}
	}
	return false
}

// excerpt returns up to maxLines trailing non-blank lines, cut to maxBytes
func (t *transcript) excerpt(maxLines, maxBytes int) string {
	var tail []string
	for i := len(t.lines) - 1; i >= 0 && len(tail) < maxLines; i-- {
		if t.lines[i].typ == MessageSystem {
			continue
		}
		if s := strings.TrimSpace(t.lines[i].text); s != "" {
			tail = append(tail, s)
		}
	}
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	s := strings.Join(tail, "\n")
	if len(s) <= maxBytes {
		return s
	}
	s = s[len(s)-maxBytes:]
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	return s
}

// cleanLine resolves carriage-return overwrites and strips escape sequences
func cleanLine(raw string) string {
	raw = strings.TrimRight(raw, "\r")
	if i := strings.LastIndexByte(raw, '\r'); i >= 0 {
		raw = raw[i+1:]
	}
	return ansi.Strip(raw)
}
