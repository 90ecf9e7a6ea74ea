package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileRotatesAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	rf, err := NewRotatingFile(path, 32, 2)
	require.NoError(t, err)

	line := []byte(strings.Repeat("a", 20) + "\n")
	for i := 0; i < 5; i++ {
		_, err := rf.Write(line)
		require.NoError(t, err)
	}
	require.NoError(t, rf.Close())

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, line, data)
}

func TestRotatingFileRotatesOversizedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 64), 0644))

	rf, err := NewRotatingFile(path, 32, 3)
	require.NoError(t, err)
	defer rf.Close()

	assert.FileExists(t, path+".1")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestRotatingFileWriteAfterClose(t *testing.T) {
	rf, err := NewRotatingFile(filepath.Join(t.TempDir(), "test.log"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	_, err = rf.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestSetupJSONWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "run.log")

	l, closer, err := Setup(Options{Level: "debug", JSON: true, File: path, Out: &buf})
	require.NoError(t, err)

	cl := Component(l, "test")
	cl.Info().Str("run", "abc").Msg("hello")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), `"component":"test"`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestSetupDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	_, closer, err := Setup(Options{Level: "nonsense", JSON: true, Out: &buf})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
