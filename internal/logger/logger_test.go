package logger

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, Config{Level: in}.SlogLevel(), in)
	}
}

func TestFileWriter(t *testing.T) {
	assert.Nil(t, Config{}.FileWriter(), "no path means no file log")

	path := filepath.Join(t.TempDir(), "suite.log")
	w := Config{Path: path}.FileWriter()
	require.NotNil(t, w)
	_, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.FileExists(t, path)
}

func TestColorTextHandlerColorsByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, true))

	log.Error("boom")
	assert.Contains(t, buf.String(), "\033[31m", "errors are red")

	buf.Reset()
	log.Info("fine")
	assert.Contains(t, buf.String(), "\033[32m", "info is green")
}
