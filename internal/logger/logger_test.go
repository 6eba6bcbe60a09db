package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel(" warning "))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
	require.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestJSONFormatCarriesService(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "api", "info", "json")
	log.Info("hello", slog.Int("n", 3))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "api", line["service"])
	require.Equal(t, "hello", line["msg"])
	require.EqualValues(t, 3, line["n"])
}

func TestTextFormatFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "api", "warn", "")
	log.Info("quiet")
	require.Zero(t, buf.Len())

	log.Warn("loud")
	require.Contains(t, buf.String(), "msg=loud")
	require.Contains(t, buf.String(), "service=api")
}
