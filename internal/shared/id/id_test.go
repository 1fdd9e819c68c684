package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	assert.NotEqual(t, gen.Generate().String(), gen.Generate().String())
}

func TestTypedIDPrefixes(t *testing.T) {
	tests := []struct {
		prefix string
		id     string
	}{
		{"sess", string(NewSessionID())},
		{"cmd", string(NewCommandID())},
		{"req", string(NewRequestID())},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			parts := strings.Split(tt.id, "_")
			require.Len(t, parts, 2)
			assert.Equal(t, tt.prefix, parts[0])
			assert.Len(t, parts[1], 26)
			assert.True(t, IsValid(tt.id))
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, s := range []string{"", "invalid", "cmd_1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		assert.False(t, IsValid(s), s)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().UnixMilli()
	cmdID := NewCommandID()
	after := time.Now().UnixMilli()

	ts, err := Timestamp(string(cmdID))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts.UnixMilli(), before)
	assert.LessOrEqual(t, ts.UnixMilli(), after)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	ids := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ids <- gen.GenerateWithPrefix(CommandPrefix)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for s := range ids {
		require.False(t, seen[s], "duplicate id %s", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestCommandIDsSortBySubmission(t *testing.T) {
	prev := string(NewCommandID())
	for i := 0; i < 20; i++ {
		next := string(NewCommandID())
		assert.Greater(t, next, prev)
		prev = next
	}
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(CommandPrefix)
	}
}
