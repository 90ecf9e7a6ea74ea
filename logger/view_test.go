package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrollgrab.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	for _, l := range lines {
		_, err := fmt.Fprintln(f, l)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func TestLastLines(t *testing.T) {
	path := writeLog(t, "one", "two", "three", "four")

	lines, total, err := LastLines(path, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"three", "four"}, lines)

	lines, total, err = LastLines(path, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, lines, 4)
}

func TestLastLinesFilter(t *testing.T) {
	path := writeLog(t,
		`{"level":"info","message":"saved image"}`,
		`{"level":"warn","message":"challenge detected"}`,
		`{"level":"info","message":"Challenge cleared"}`,
	)

	lines, total, err := LastLines(path, 10, "CHALLENGE")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Contains(t, lines[1], "cleared")
}

func TestLastLinesMissingFile(t *testing.T) {
	_, _, err := LastLines(filepath.Join(t.TempDir(), "nope.log"), 10, "")
	assert.Error(t, err)
}

func TestFollowSeesAppendedLines(t *testing.T) {
	path := writeLog(t, "old line")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	assert.Eventually(t, func() bool {
		_, _ = fmt.Fprintln(f, "new line")
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "new line", got[0])
	assert.NotContains(t, got, "old line")
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("anything", ""))
	assert.True(t, Matches("Challenge detected", "challenge"))
	assert.False(t, Matches("saved image", "challenge"))
}
