package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel).With("component", "test")

	l.Info("收到调用", "url", "https://example.com", "status", 200)
	out := buf.String()
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"url":"https://example.com"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"message":"收到调用"`)

	buf.Reset()
	l.Err(errors.New("boom"), "失败")
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileWriterRequiresPath(t *testing.T) {
	_, err := New(Options{Level: "info", Writers: []string{"file"}})
	require.Error(t, err)

	l, err := New(Options{Level: "debug", Writers: []string{"file"}, File: filepath.Join(t.TempDir(), "app.log")})
	require.NoError(t, err)
	l.Info("ok")
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Info("x", "k", "v")
	l.With("a", 1).Err(errors.New("e"), "y")
}
