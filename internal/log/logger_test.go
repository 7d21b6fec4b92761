package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/framelat/internal/config"
)

func newBufferLogger(level logrus.Level, pattern string) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetFormatter(newFormatter(pattern, time.RFC3339))
	l.SetLevel(level)
	l.SetOutput(&buf)
	return &logrusAdapter{entry: logrus.NewEntry(l)}, &buf
}

func TestInitStdoutOnly(t *testing.T) {
	err := Init(config.LogConfig{Level: "info"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("Expected logger to be set, got nil")
	}
	if !GetLogger().IsInfoEnabled() || GetLogger().IsDebugEnabled() {
		t.Error("Expected info level logger")
	}
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	cfg := config.LogConfig{
		Level: "debug",
		File: config.FileOutputConfig{
			Enabled: true,
			Path:    logPath,
			Rotation: config.RotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
	}

	if err := Init(cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	GetLogger().WithField("key", "value").Info("test message")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created at %s: %v", logPath, err)
	}
	if !strings.Contains(string(data), "test message") || !strings.Contains(string(data), "key=value") {
		t.Errorf("unexpected log file content: %q", data)
	}
}

func TestInitWithInvalidLevel(t *testing.T) {
	err := Init(config.LogConfig{Level: "loud"})
	if err == nil {
		t.Fatal("Expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected error about invalid log level, got: %v", err)
	}
}

func TestInitWithMissingFilePath(t *testing.T) {
	err := Init(config.LogConfig{
		Level: "info",
		File:  config.FileOutputConfig{Enabled: true},
	})
	if err == nil {
		t.Fatal("Expected error for missing file path, got nil")
	}
	if !strings.Contains(err.Error(), "path") {
		t.Errorf("Expected error about missing path, got: %v", err)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(logrus.WarnLevel, "%level %msg%n")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("debug/info should be filtered out, got %q", output)
	}
	if !strings.Contains(output, "warning warn message") {
		t.Errorf("warn message should be present, got %q", output)
	}
	if !strings.Contains(output, "error error message") {
		t.Errorf("error message should be present, got %q", output)
	}
}

func TestPatternFormat(t *testing.T) {
	logger, buf := newBufferLogger(logrus.InfoLevel, "[%level] %field | %msg%n")

	logger.WithFields(map[string]interface{}{
		"session":  "abc",
		"endpoint": "sender",
	}).WithError(errors.New("boom")).Info("handshake done")

	got := buf.String()
	want := "[info] endpoint=sender,error=boom,session=abc | handshake done\n"
	if got != want {
		t.Errorf("formatted line = %q, want %q", got, want)
	}
}

func TestMultiWriterKeepsWritingAfterFailure(t *testing.T) {
	var good bytes.Buffer
	mw := NewMultiWriter().Add(failingWriter{}).Add(&good)

	n, err := mw.Write([]byte("line"))
	if err == nil {
		t.Error("expected error from failing appender")
	}
	if n != 4 || good.String() != "line" {
		t.Errorf("healthy appender should still receive the line, got n=%d %q", n, good.String())
	}
}

func TestMultiWriterClosesOnlyOwnedAppenders(t *testing.T) {
	shared := &closeRecorder{}
	owned := &closeRecorder{}
	mw := NewMultiWriter().Add(shared).AddCloser(owned)

	if _, err := mw.Write([]byte("line")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !owned.closed {
		t.Error("owned appender should be closed")
	}
	if shared.closed {
		t.Error("plain appender should stay open")
	}
	if shared.String() != "line" || owned.String() != "line" {
		t.Errorf("both appenders should receive the line, got %q and %q", shared.String(), owned.String())
	}
}

func TestCloseReleasesLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "close.log")
	err := Init(config.LogConfig{
		Level: "info",
		File:  config.FileOutputConfig{Enabled: true, Path: logPath},
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { Init(config.LogConfig{Level: "info"}) })

	GetLogger().Info("before close")
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// a closed rotated file is reopened by the next write
	GetLogger().Info("after close")
	if err := Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "before close") || !strings.Contains(string(data), "after close") {
		t.Errorf("log file missing lines: %q", string(data))
	}
}

func TestNewDiscard(t *testing.T) {
	l := NewDiscard()
	l.WithField("k", 1).Error("dropped")
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }
