package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	tests := []struct {
		name  string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLogLevel(tt.level)
			if got := GetLogLevel(); got != tt.level {
				t.Errorf("GetLogLevel() = %v, want %v", got, tt.level)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("log output missing message: %s", buf.String())
	}
}

// Nil options inherit the package level, which defaults to Warn.
func TestNewLoggerDefaultLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)
	SetLogLevel(slog.LevelWarn)

	var buf bytes.Buffer
	logger := NewLogger(&buf, nil)

	logger.Info("suppressed message")
	if buf.Len() != 0 {
		t.Errorf("info logged below package level: %s", buf.String())
	}
	logger.Warn("visible message")
	if !strings.Contains(buf.String(), "visible message") {
		t.Errorf("log output missing message: %s", buf.String())
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	if logger == nil {
		t.Fatal("NewJSONLogger returned nil")
	}

	logger.Info("test message")
	output := buf.String()
	if !strings.Contains(output, `"msg":"test message"`) {
		t.Errorf("JSON log output missing message: %s", output)
	}
}

func TestLogComponentAttribute(t *testing.T) {
	original := DefaultLogger
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogDebug(ComponentEngine, "phase change", "phase", "IN_DATA")
	output := buf.String()
	if !strings.Contains(output, "component=engine") {
		t.Errorf("log output missing component: %s", output)
	}
	if !strings.Contains(output, "phase=IN_DATA") {
		t.Errorf("log output missing attribute: %s", output)
	}
}
