// Package logger tests verify the custom [Handler] output format, level
// filtering, attribute grouping, and the [NewLogger] constructor.
package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// ///////////////////////////////////////////////
// Handler Output Format
// ///////////////////////////////////////////////

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	logger := slog.New(h)

	logger.Info("test message", "key", "value")

	line := strings.TrimRight(buf.String(), "\r\n")

	// Format: timestamp [LEVEL] message | key=value
	if !strings.Contains(line, "[INFO]") {
		t.Errorf("expected [INFO] in output, got %q", line)
	}
	if !strings.Contains(line, "test message") {
		t.Errorf("expected message in output, got %q", line)
	}
	if !strings.Contains(line, "| key=value") {
		t.Errorf("expected key=value in output, got %q", line)
	}
	// Timestamp should end with Z (UTC)
	if !strings.HasSuffix(strings.Split(line, " [")[0], "Z") {
		t.Errorf("expected UTC timestamp ending with Z, got %q", line)
	}
}

func TestHandlerNoAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelInfo))

	logger.Info("no attrs")

	line := strings.TrimRight(buf.String(), "\r\n")
	if strings.Contains(line, "|") {
		t.Errorf("expected no pipe separator without attrs, got %q", line)
	}
}

func TestHandlerMultipleAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelInfo))

	logger.Info("multi", "a", "1", "b", "2")

	line := strings.TrimRight(buf.String(), "\r\n")
	if !strings.Contains(line, "a=1, b=2") {
		t.Errorf("expected comma-separated attrs, got %q", line)
	}
}

// ///////////////////////////////////////////////
// Level Filtering
// ///////////////////////////////////////////////

func TestHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelWarn))

	logger.Info("should be filtered")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Error("info message should have been filtered at warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn message should appear at warn level")
	}
}

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

func TestHandlerCustomLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelTrace))

	Trace(logger, "trace msg")
	Fail(logger, "fail msg")

	output := buf.String()
	if !strings.Contains(output, "[TRACE]") {
		t.Errorf("expected [TRACE] in output, got %q", output)
	}
	if !strings.Contains(output, "[FAIL]") {
		t.Errorf("expected [FAIL] in output, got %q", output)
	}
}

func TestLevelNames(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  string
	}{
		{"trace", LevelTrace, "TRACE"},
		{"debug", LevelDebug, "DEBUG"},
		{"info", LevelInfo, "INFO"},
		{"warn", LevelWarn, "WARN"},
		{"error", LevelError, "ERROR"},
		{"fail", LevelFail, "FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelName(tt.level); got != tt.want {
				t.Errorf("levelName(%d) = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// ParseLevel
// ///////////////////////////////////////////////

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"trace_lower", "trace", LevelTrace},
		{"trace_upper", "TRACE", LevelTrace},
		{"debug", "debug", LevelDebug},
		{"info", "info", LevelInfo},
		{"warn", "warn", LevelWarn},
		{"error", "error", LevelError},
		{"fail", "fail", LevelFail},
		{"unknown_defaults_to_info", "unknown", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// WithAttrs / WithGroup
// ///////////////////////////////////////////////

func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "farmbotd")}))

	logger.Info("test")

	line := strings.TrimRight(buf.String(), "\r\n")
	if !strings.Contains(line, "service=farmbotd") {
		t.Errorf("expected pre-applied attr, got %q", line)
	}
}

func TestHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	logger := slog.New(h.WithGroup("session"))

	logger.Info("grouped", "gid", "42", "platform", "qq")

	line := strings.TrimRight(buf.String(), "\r\n")
	if !strings.Contains(line, "session.gid=42") {
		t.Errorf("expected group prefix on key, got %q", line)
	}
	if !strings.Contains(line, "session.platform=qq") {
		t.Errorf("expected group prefix on second key, got %q", line)
	}
}

func TestHandlerWithGroupNested(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	logger := slog.New(h.WithGroup("bot").WithGroup("farm"))

	logger.Info("nested", "lands", "9")

	line := strings.TrimRight(buf.String(), "\r\n")
	if !strings.Contains(line, "bot.farm.lands=9") {
		t.Errorf("expected nested group prefix, got %q", line)
	}
}

func TestHandlerWithGroupEmpty(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	if h.WithGroup("") != h {
		t.Error("WithGroup with empty string should return same handler")
	}
}

func TestHandlerWithAttrsSharedMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*Handler)

	if h.mu != h2.mu {
		t.Error("WithAttrs should share the same mutex pointer")
	}

	// Concurrent writes through both handlers must not interleave lines.
	logger1 := slog.New(h)
	logger2 := slog.New(h2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			logger1.Info("from handler 1")
		}()
		go func() {
			defer wg.Done()
			logger2.Info("from handler 2")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	if len(lines) != 100 {
		t.Errorf("expected 100 log lines, got %d", len(lines))
	}
}

// ///////////////////////////////////////////////
// NewLogger Constructor
// ///////////////////////////////////////////////

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	logger, closer, err := NewLogger(path, LevelInfo, 10)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	logger.Info("constructor test")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "constructor test") {
		t.Errorf("expected log output in file, got %q", string(data))
	}
}
