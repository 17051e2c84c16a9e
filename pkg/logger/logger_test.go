package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mpscraper/pkg/config"
)

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"info level", &config.LoggingConfig{Level: "info"}, false},
		{"debug level", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid level", &config.LoggingConfig{Level: "chatty"}, true},
		{"file output", &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "mp.log")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"loud", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.WithField("account", "Alpha").
		WithFields(map[string]interface{}{"page": 2, "stopped": true}).
		WithError(errors.New("boom")).
		InfoWithFields("page fetched", map[string]interface{}{"items": int64(5), "wait": 3 * time.Second})

	out := buf.String()
	assert.Contains(t, out, "page fetched")
	assert.Contains(t, out, `"account":"Alpha"`)
	assert.Contains(t, out, `"page":2`)
	assert.Contains(t, out, `"stopped":true`)
	assert.Contains(t, out, `"items":5`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestWithFieldDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	_ = l.WithField("child", "yes")
	l.Info("parent line")
	assert.NotContains(t, buf.String(), "child")
}

func TestWithNilError(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)
	assert.Same(t, l, l.WithError(nil))
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "GET", "https://example.com/cgi-bin/appmsg", 200, 12.5)
	LogRequest(tl, "GET", "https://example.com/cgi-bin/appmsg", 429, 3)
	LogRequest(tl, "GET", "https://example.com/cgi-bin/appmsg", 0, 3)
	LogMediaFetch(tl, "https://img.example.com/a.png", "image", 4, errors.New("timeout"))
	LogRateLimit(tl, "appmsg", "10s")
	LogScrapeProgress(tl, "Alpha", 3, 4)

	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 3)
	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 1)

	progress := tl.GetMessagesByLevel("INFO")
	require.Len(t, progress, 1)
	assert.Equal(t, "75.0%", progress[0].Fields["percentage"])
}

func TestTestLoggerSharesSink(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("account", "Alpha").WithError(errors.New("expired"))
	child.Warn("credential rejected")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Alpha", msgs[0].Fields["account"])
	assert.Equal(t, "expired", msgs[0].Error)
	assert.True(t, tl.HasMessage("credential"))

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "error"}))
	assert.NotNil(t, GetLogger())

	tl := NewTestLogger()
	SetLogger(tl)
	Info("through global")
	WithField("k", "v").Warn("with field")
	assert.True(t, tl.HasMessage("through global"))
	assert.Len(t, tl.GetMessages(), 2)
}
