package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     LogLevel
		wantDebug bool
		wantInfo  bool
	}{
		{name: "debug", level: LogLevelDebug, wantDebug: true, wantInfo: true},
		{name: "info", level: LogLevelInfo, wantDebug: false, wantInfo: true},
		{name: "upper case warn", level: LogLevel("WARN"), wantDebug: false, wantInfo: false},
		{name: "unknown falls back to info", level: LogLevel("chatty"), wantDebug: false, wantInfo: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(tt.level, &buf)

			l.Debug("debug line")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))

			l.Info("info line")
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("info line")))
		})
	}
}

func TestWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogLevelInfo, &buf).
		WithComponent("dispatch").
		WithFields(map[string]interface{}{"kind": "raid"})

	l.Info("handled")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "dispatch", rec["component"])
	assert.Equal(t, "raid", rec["kind"])
	assert.Equal(t, "handled", rec["msg"])
}
