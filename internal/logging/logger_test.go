package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input string
		want  zapcore.Level
	}{
		{input: "debug", want: zapcore.DebugLevel},
		{input: " INFO ", want: zapcore.InfoLevel},
		{input: "", want: zapcore.InfoLevel},
		{input: "warning", want: zapcore.WarnLevel},
		{input: "error", want: zapcore.ErrorLevel},
		{input: "verbose", want: zapcore.InfoLevel},
	}

	for _, testCase := range testCases {
		if got := ParseLevel(testCase.input); got != testCase.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", testCase.input, got, testCase.want)
		}
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "stickynotes.log")

	logger, err := NewLogger("info", logPath)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	logger.Debug("hidden entry")
	logger.Info("backup stored")
	_ = logger.Sync()

	contents, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(contents), "backup stored") {
		t.Fatalf("expected info entry in log file, got %q", string(contents))
	}
	if strings.Contains(string(contents), "hidden entry") {
		t.Fatalf("debug entry should be filtered at info level")
	}
}
