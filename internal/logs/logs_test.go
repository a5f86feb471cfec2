package logs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]log.Level{
		"debug": log.DebugLevel, "INFO": log.InfoLevel, "": log.InfoLevel,
		"warn": log.WarnLevel, "warning": log.WarnLevel, "error": log.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "debug", Format: "json", Prefix: "client"})
	require.NoError(t, err)
	logger.Debug("connection", "connected", true, "id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "connection", line["msg"])
	assert.Equal(t, "abc", line["id"])
	assert.Contains(t, line, "connected")
	assert.Contains(t, buf.String(), "client")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
}
