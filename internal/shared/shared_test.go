package shared

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tc := []struct {
		name    string
		input   string
		want    log.Level
		wantErr bool
	}{
		{name: "empty defaults to info", input: "", want: log.InfoLevel},
		{name: "debug", input: "debug", want: log.DebugLevel},
		{name: "mixed case and spaces", input: "  WARN ", want: log.WarnLevel},
		{name: "error", input: "error", want: log.ErrorLevel},
		{name: "unknown", input: "verbose", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoggers(t *testing.T) {
	t.Run("NewLogger writes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		WithLogger(logger, "task", "copy").Info("started")

		out := buf.String()
		if !strings.Contains(out, "started") || !strings.Contains(out, "task=copy") {
			t.Errorf("unexpected log output: %q", out)
		}
	})

	t.Run("SetLogLevel filters messages", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		SetLogLevel(logger, log.WarnLevel)
		logger.Info("hidden")

		if buf.Len() != 0 {
			t.Errorf("expected info to be filtered, got %q", buf.String())
		}
	})

	t.Run("NewFileLogger creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "xlsync.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		logger.Info("hello")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "hello") {
			t.Errorf("expected log file to contain message, got %q", string(data))
		}
	})
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected unique IDs")
	}
	if len(a) != 36 {
		t.Errorf("expected UUID string of length 36, got %d", len(a))
	}
}

func TestMarshalJSON(t *testing.T) {
	data := map[string]int{"a": 1}

	compact, err := MarshalJSON(data, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(compact) != `{"a":1}` {
		t.Errorf("unexpected compact JSON: %s", compact)
	}

	pretty, err := MarshalJSON(data, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(pretty), "\n  \"a\": 1") {
		t.Errorf("unexpected pretty JSON: %s", pretty)
	}
}
