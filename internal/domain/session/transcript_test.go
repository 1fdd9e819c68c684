package session

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		line string
		want MessageType
	}{
		{"hello world", MessageStdout},
		{"[system] session ready", MessageSystem},
		{"> ", MessageSystem},
		{"$", MessageSystem},
		{"Error: file not found", MessageError},
		{"error[E0425]: cannot find value", MessageError},
		{"FATAL: out of memory", MessageError},
		{"Build failed: 2 errors", MessageError},
		{"Traceback (most recent call last):", MessageError},
		{"✗ tests did not pass", MessageError},
		{"Warning: deprecated flag", MessageStderr},
		{"⚠ rate limited", MessageStderr},
		{"no errors found", MessageStdout},
		{"__PTYEXEC_EXIT__:0", messageHidden},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.line), tt.line)
	}
}

func TestClassifierCustomRulesFirstMatchWins(t *testing.T) {
	c := NewClassifier(
		Rule{Name: "note", Type: MessageSystem, Pattern: regexp.MustCompile(`^note`)},
		Rule{Name: "any", Type: MessageError, Pattern: regexp.MustCompile(`.`)},
	)
	assert.Equal(t, MessageSystem, c.Classify("note: error here"))
	assert.Equal(t, MessageError, c.Classify("plain"))
	assert.Equal(t, MessageStdout, c.Classify(""))
}

func TestDetectorPriority(t *testing.T) {
	d := DefaultDetector(DefaultCompletionPhrases(), DefaultFailurePhrases())

	v, ok := d.Evaluate([]string{"Done.", "__PTYEXEC_EXIT__:4"})
	require.True(t, ok)
	assert.Equal(t, "exit-sentinel", v.Rule)
	assert.False(t, v.Success)
	assert.True(t, v.Authoritative)
	require.NotNil(t, v.ExitCode)
	assert.Equal(t, 4, *v.ExitCode)

	v, ok = d.Evaluate([]string{"  Done. 3 files changed"})
	require.True(t, ok)
	assert.True(t, v.Success)
	assert.False(t, v.Authoritative)

	v, ok = d.Evaluate([]string{"Command failed with status 1"})
	require.True(t, ok)
	assert.False(t, v.Success)

	_, ok = d.Evaluate([]string{"still working", "almost Done."})
	assert.False(t, ok)

	var nilDetector *Detector
	_, ok = nilDetector.Evaluate([]string{"Done."})
	assert.False(t, ok)
}

func TestTranscriptSplitsChunksIntoLines(t *testing.T) {
	tr := newTranscript(NewClassifier())
	now := time.Now()

	lines := tr.feed([]byte("hel"), now)
	assert.Equal(t, []string{"hel"}, lines)

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hel", msgs[0].Content)
	assert.True(t, msgs[0].Partial)

	lines = tr.feed([]byte("lo\r\nworld\r\n"), now)
	assert.Equal(t, []string{"hello", "world"}, lines)

	tr.finalize()
	msgs = tr.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello\nworld", msgs[0].Content)
	assert.False(t, msgs[0].Partial)
}

func TestTranscriptCleansTerminalControl(t *testing.T) {
	tr := newTranscript(NewClassifier())
	tr.feed([]byte("\x1b[32mgreen\x1b[0m\r\nprogress 10%\rprogress 100%\r\n"), time.Now())
	tr.finalize()

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "green\nprogress 100%", msgs[0].Content)
}

func TestTranscriptDropsEchoOnce(t *testing.T) {
	tr := newTranscript(NewClassifier())
	tr.expectEcho("echo hi")
	tr.feed([]byte("\r\n> echo hi\r\nhi\r\necho hi\r\n"), time.Now())
	tr.finalize()

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi\necho hi", msgs[0].Content)
}

func TestTranscriptCoalescesByType(t *testing.T) {
	tr := newTranscript(NewClassifier())
	tr.feed([]byte("one\ntwo\nError: bad\nError: worse\nthree\n"), time.Now())
	tr.note(MessageSystem, "[system] note", time.Now())
	tr.finalize()

	msgs := tr.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, MessageStdout, msgs[0].Type)
	assert.Equal(t, "one\ntwo", msgs[0].Content)
	assert.Equal(t, MessageError, msgs[1].Type)
	assert.Equal(t, "Error: bad\nError: worse", msgs[1].Content)
	assert.Equal(t, MessageStdout, msgs[2].Type)
	assert.Equal(t, MessageSystem, msgs[3].Type)
	assert.True(t, tr.hasErrors())
}

func TestTranscriptKeepsSplitRunesIntact(t *testing.T) {
	tr := newTranscript(NewClassifier())
	check := []byte("✓ passed\n")
	tr.feed(check[:2], time.Now())
	tr.feed(check[2:], time.Now())
	tr.finalize()

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "✓ passed", msgs[0].Content)
}

func TestTranscriptExcerpt(t *testing.T) {
	tr := newTranscript(NewClassifier())
	for i := 0; i < 10; i++ {
		tr.feed([]byte("line "+strings.Repeat("x", i)+"\n"), time.Now())
	}
	ex := tr.excerpt(3, 512)
	assert.Equal(t, "line xxxxxxx\nline xxxxxxxx\nline xxxxxxxxx", ex)

	short := tr.excerpt(3, 10)
	assert.Len(t, short, 10)
	assert.True(t, strings.HasSuffix(short, "xxxxxxxxx"))
}

func TestTranscriptExcerptSkipsPrompts(t *testing.T) {
	tr := newTranscript(NewClassifier())
	tr.feed([]byte("ls: cannot access 'nope': No such file or directory\n# \n"), time.Now())
	tr.finalize()

	assert.Equal(t, "ls: cannot access 'nope': No such file or directory", tr.excerpt(5, 512))
}
